package systemutil

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
)

// StreamLog copies the lines of a log file to w. With follow set it keeps
// waiting for new lines until ctx is done.
func StreamLog(ctx context.Context, path string, w io.Writer, follow bool) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
