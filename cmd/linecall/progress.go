package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/alicas/linecall-agent/internal/workflow"
)

// progressFile shows a progress bar while the backend client reads the file.
type progressFile struct {
	workflow.File
	out io.Writer
}

func (f *progressFile) Open() (io.ReadCloser, error) {
	rc, err := f.File.Open()
	if err != nil {
		return nil, err
	}
	bar := progressbar.NewOptions64(f.Size(),
		progressbar.OptionSetWriter(f.out),
		progressbar.OptionSetDescription(f.Name()),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(f.out)
		}),
	)
	return &barReader{Reader: io.TeeReader(rc, bar), rc: rc, bar: bar}, nil
}

type barReader struct {
	io.Reader
	rc  io.Closer
	bar *progressbar.ProgressBar
}

func (r *barReader) Close() error {
	r.bar.Finish()
	return r.rc.Close()
}
