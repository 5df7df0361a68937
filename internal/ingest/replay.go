package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// maxLineSize bounds a single log line.
const maxLineSize = 1 << 20

// Replay feeds every line of r through the pipeline and stops at EOF or
// when ctx is done. Line errors are logged and skipped.
func (p *Pipeline) Replay(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		if err := p.HandleLine(sc.Text()); err != nil {
			p.logger.Warn("skipping line", "line", n, "error", err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", n+1, err)
	}
	return nil
}
