package cycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Pjt727/classy-sync/internal/model"
)

// ErrReplayExhausted is returned when every recorded payload has been served.
var ErrReplayExhausted = errors.New("replay: no recorded payloads left")

// ReplayTransport serves recorded JSON payloads from a directory, one file
// per request, in file name order. Files without a .json extension are
// ignored. The request content is not inspected.
type ReplayTransport struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewReplayTransport lists the payload files in dir.
func NewReplayTransport(dir string) (*ReplayTransport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("replay: no .json payloads in %s", dir)
	}
	return &ReplayTransport{files: files}, nil
}

// Remaining returns how many payloads have not been served.
func (t *ReplayTransport) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files) - t.next
}

// FetchAll implements Transport.
func (t *ReplayTransport) FetchAll(ctx context.Context, _ model.AllRequest) (model.AllResultPayload, error) {
	var payload model.AllResultPayload
	err := t.decodeNext(ctx, &payload)
	return payload, err
}

// FetchSelect implements Transport.
func (t *ReplayTransport) FetchSelect(ctx context.Context, _ model.SelectRequest) (model.SelectResultPayload, error) {
	var payload model.SelectResultPayload
	err := t.decodeNext(ctx, &payload)
	return payload, err
}

func (t *ReplayTransport) decodeNext(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.next >= len(t.files) {
		t.mu.Unlock()
		return ErrReplayExhausted
	}
	path := t.files[t.next]
	t.next++
	t.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("replay: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
