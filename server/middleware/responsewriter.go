package middleware

import "net/http"

// recordingWriter remembers the status and body size of a response for
// the request log. SSE streams need Flush and CloseNotify to reach it.
type recordingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newRecordingWriter(w http.ResponseWriter) *recordingWriter {
	return &recordingWriter{ResponseWriter: w}
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Status returns the response status, 200 when the handler wrote nothing.
func (rw *recordingWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *recordingWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// CloseNotify forwards to the wrapped writer. gin asserts it
// unconditionally when streaming; a writer without it never reports a close.
func (rw *recordingWriter) CloseNotify() <-chan bool {
	//nolint:staticcheck // gin's responseWriter still depends on CloseNotifier.
	if cn, ok := rw.ResponseWriter.(http.CloseNotifier); ok {
		return cn.CloseNotify()
	}
	return make(chan bool)
}

// Unwrap lets http.ResponseController reach the original writer.
func (rw *recordingWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
