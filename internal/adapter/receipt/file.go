package receipt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rl1809/cafe-pos/internal/port"
)

// FileSink writes each receipt to its own text file. The file name is the
// receipt id.
type FileSink struct {
	dir string
	now func() time.Time
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

func (s *FileSink) Write(ctx context.Context, r port.Receipt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("receipt_%s_%s.txt", safeName(r.OrderNumber), s.now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	// O_EXCL so two prints in the same second never overwrite each other.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		name = strings.TrimSuffix(name, ".txt") + "_" + fmt.Sprint(s.now().UnixNano()) + ".txt"
		path = filepath.Join(s.dir, name)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create receipt file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(r.Text); err != nil {
		return "", fmt.Errorf("write receipt file: %w", err)
	}
	return name, nil
}

// Read returns the text of a previously written receipt.
func (s *FileSink) Read(id string) (string, error) {
	if id != filepath.Base(id) {
		return "", fmt.Errorf("invalid receipt id %q", id)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return "", fmt.Errorf("read receipt file: %w", err)
	}
	return string(b), nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' || r == '.' {
			return '_'
		}
		return r
	}, s)
}
