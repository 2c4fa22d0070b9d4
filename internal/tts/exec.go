package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth runs a local command that reads one JSON request on stdin and
// prints one JSON line per audio segment.
type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	APIKey     string `json:"api_key,omitempty"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
	Error     string `json:"error,omitempty"`
}

func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, apiKey string, req Request) (Payload, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      string(req.Voice),
		SampleRate: e.sampleRate,
		Channels:   1,
		APIKey:     apiKey,
	})
	if err != nil {
		return Payload{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = strings.NewReader(string(data))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Payload{}, err
	}
	if err := cmd.Start(); err != nil {
		return Payload{}, err
	}

	payload := Payload{MimeType: fmt.Sprintf("audio/L16;codec=pcm;rate=%d", e.sampleRate)}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return Payload{}, fmt.Errorf("decode tts exec line: %w", err)
		}
		if resp.Error != "" {
			_ = cmd.Wait()
			return Payload{}, fmt.Errorf("tts exec: %s", resp.Error)
		}
		payload.Segments = append(payload.Segments, resp.PCMBase64)
		if resp.Final {
			break
		}
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		return Payload{}, fmt.Errorf("tts exec command failed: %w", err)
	}
	if scanErr != nil {
		return Payload{}, scanErr
	}
	return payload, nil
}
