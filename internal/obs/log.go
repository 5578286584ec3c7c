package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Everything the service logs
// goes through it as single-line JSON on stdout: per-request completion
// entries from the HTTP layer and dropped audit writes from the recorder.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest marshals one event to a JSON line. Callers build the map with at
// least ts, level and msg; the HTTP layer adds request_id, method, path,
// status and duration_ms. A map that cannot be marshaled is reported as an
// error line rather than silently dropped.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"log marshal failed","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}
