package middleware

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// Logger only logs slow or failed requests. Widgets poll the API constantly
// and successful fast calls would drown everything else.
func Logger(slow time.Duration) fiber.Handler {
	return logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		Output: &filteredWriter{
			dest:             os.Stdout,
			slowThreshold:    slow,
			errorStatusFloor: 400,
		},
	})
}

// filteredWriter parses lines of the form
//
//	"15:04:05 | 200 | 1.23ms | GET /path\n"
//
// and drops the fast successful ones.
type filteredWriter struct {
	dest             io.Writer
	slowThreshold    time.Duration
	errorStatusFloor int
}

func (w *filteredWriter) Write(p []byte) (int, error) {
	parts := strings.Split(strings.TrimSpace(string(p)), " | ")
	if len(parts) < 3 {
		return w.dest.Write(p)
	}

	if status, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && status >= w.errorStatusFloor {
		return w.dest.Write(p)
	}

	// fiber prints µs latencies; time.ParseDuration accepts both µs and us
	if d, err := time.ParseDuration(strings.TrimSpace(parts[2])); err == nil && d >= w.slowThreshold {
		return w.dest.Write(p)
	}

	return len(p), nil
}
