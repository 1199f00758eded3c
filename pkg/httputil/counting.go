package httputil

import "io"

// CountingReader counts the bytes read through it and optionally reports
// the running total after every read. Err holds the first read error other
// than io.EOF, which lets callers tell a broken connection apart from a
// failure in a decoder stacked on top.
type CountingReader struct {
	R        io.Reader
	N        int64
	Err      error
	Progress func(n int64)
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	if n > 0 && c.Progress != nil {
		c.Progress(c.N)
	}
	if err != nil && err != io.EOF && c.Err == nil {
		c.Err = err
	}
	return n, err
}
