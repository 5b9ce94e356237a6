package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Progress is one block of `-progress` output.
type Progress struct {
	OutTime   time.Duration
	TotalSize int64
	Speed     string
	Done      bool
}

// Seconds is the media time written so far.
func (p Progress) Seconds() float64 { return p.OutTime.Seconds() }

// progressParser folds key=value lines into Progress blocks. A block ends at
// the "progress=" line.
type progressParser struct {
	cur Progress
}

func (p *progressParser) line(s string) (Progress, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return Progress{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// both keys are microseconds; out_time_ms is misnamed upstream
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.cur.OutTime = time.Duration(us) * time.Microsecond
		}
	case "total_size":
		p.cur.TotalSize, _ = strconv.ParseInt(value, 10, 64)
	case "speed":
		p.cur.Speed = strings.TrimSpace(value)
	case "progress":
		p.cur.Done = value == "end"
		return p.cur, true
	}
	return Progress{}, false
}

func scanProgress(r io.Reader, fn func(Progress)) {
	var p progressParser
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if block, ok := p.line(sc.Text()); ok {
			fn(block)
			if block.Done {
				return
			}
		}
	}
}
