package storage

import (
	"context"
	"io"
	"net/url"
)

// progressReader counts bytes flowing through r and reports them to fn.
// Reads fail with the context error once ctx is done, which aborts copies.
type progressReader struct {
	ctx   context.Context
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, fn ProgressFunc) *progressReader {
	if total <= 0 {
		total = -1
	}
	return &progressReader{ctx: ctx, r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.fn != nil {
			p.fn(p.sent, p.total)
		}
	}
	return n, err
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}
