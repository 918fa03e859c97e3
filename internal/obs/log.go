package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// ServiceName labels every log line so shippers can route the stream
// without per-deployment configuration.
const ServiceName = "agenda-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared line logger. Every line it carries is a
// single JSON object.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits one JSON log line. The service name and an RFC 3339
// timestamp are stamped when the caller did not set them; the caller's
// map is left untouched.
func LogRequest(entry map[string]any) {
	line := make(map[string]any, len(entry)+2)
	for k, v := range entry {
		line[k] = v
	}
	if _, ok := line["service"]; !ok {
		line["service"] = ServiceName
	}
	if _, ok := line["ts"]; !ok {
		line["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(line)
	if err != nil {
		Logger().Println(`{"service":"` + ServiceName + `","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
