package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/podushkina/meetscribe/internal/retry"
)

const TranscriptionModel = "whisper-1"

type Transcript struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
}

// Transcriber sends audio to /v1/audio/transcriptions.
type Transcriber struct {
	Client *Client
	Model  string
	Retry  retry.Policy
}

func NewTranscriber(c *Client) *Transcriber {
	return &Transcriber{Client: c, Model: TranscriptionModel, Retry: retry.Transcription()}
}

// Transcribe uploads the file at path. onUploaded, when set, is called
// once the request body has been fully sent on an attempt.
func (t *Transcriber) Transcribe(ctx context.Context, path string, onUploaded func()) (*Transcript, error) {
	var out *Transcript
	err := t.Retry.Do(ctx, func(ctx context.Context) error {
		res, err := t.attempt(ctx, path, onUploaded)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Transcriber) attempt(ctx context.Context, path string, onUploaded func()) (*Transcript, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	model := t.Model
	if model == "" {
		model = TranscriptionModel
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	size := int64(body.Len())
	var reqBody io.Reader = body
	var nr *notifyReader
	if onUploaded != nil {
		nr = &notifyReader{r: body, done: onUploaded}
		reqBody = nr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Client.BaseURL+"/v1/audio/transcriptions", reqBody)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := t.Client.do(req, "transcription")
	if err != nil {
		return nil, err
	}
	if nr != nil {
		nr.fire()
	}

	var res Transcript
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("parsing transcription response: %w", err)
	}
	return &res, nil
}

// notifyReader calls done once, when the wrapped reader hits EOF.
type notifyReader struct {
	r     io.Reader
	done  func()
	fired bool
}

func (n *notifyReader) Read(p []byte) (int, error) {
	k, err := n.r.Read(p)
	if err == io.EOF {
		n.fire()
	}
	return k, err
}

func (n *notifyReader) fire() {
	if !n.fired {
		n.fired = true
		n.done()
	}
}
