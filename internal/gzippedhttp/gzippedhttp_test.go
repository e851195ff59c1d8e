package gzippedhttp

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/students/internal/apperror"
)

func gzipString(t *testing.T, input string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	_, err := gzipWriter.Write([]byte(input))
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())

	return buf.Bytes()
}

func gunzip(t *testing.T, data []byte) string {
	t.Helper()

	reader, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer reader.Close()

	result, err := io.ReadAll(reader)
	require.NoError(t, err)

	return string(result)
}

func TestGzipResponse(t *testing.T) {
	type tTestCase struct {
		name           string
		acceptEncoding string
		contentType    string
		status         int
		wantGzip       bool
	}
	testCases := []tTestCase{
		{name: "json", acceptEncoding: "gzip, deflate", contentType: "application/json", status: http.StatusOK, wantGzip: true},
		{name: "html with charset", acceptEncoding: "gzip", contentType: "text/html; charset=utf-8", status: http.StatusOK, wantGzip: true},
		{name: "client without gzip", acceptEncoding: "", contentType: "application/json", status: http.StatusOK, wantGzip: false},
		{name: "plain text", acceptEncoding: "gzip", contentType: "text/plain", status: http.StatusOK, wantGzip: false},
		{name: "error status", acceptEncoding: "gzip", contentType: "application/json", status: http.StatusNotFound, wantGzip: false},
	}

	const body = `{"status":"success"}`

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			handler := GzipResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", testCase.contentType)
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(body))
			}))

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set("Accept-Encoding", testCase.acceptEncoding)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, testCase.status, recorder.Code)
			if testCase.wantGzip {
				assert.Equal(t, "gzip", recorder.Header().Get("Content-Encoding"))
				assert.Equal(t, body, gunzip(t, recorder.Body.Bytes()))
			} else {
				assert.Empty(t, recorder.Header().Get("Content-Encoding"))
				assert.Equal(t, body, recorder.Body.String())
			}
		})
	}
}

func TestGzipResponse_ImplicitStatus(t *testing.T) {
	handler := GzipResponse(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Accept-Encoding", "gzip")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "[]", gunzip(t, recorder.Body.Bytes()))
}

func TestUngzipJSONAndTextHTMLRequest(t *testing.T) {
	echo := UngzipJSONAndTextHTMLRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _ = w.Write(body)
	}))

	t.Run("gzipped", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(gzipString(t, `{"age":20}`)))
		request.Header.Set("Content-Encoding", "gzip")
		recorder := httptest.NewRecorder()
		echo.ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, `{"age":20}`, recorder.Body.String())
	})

	t.Run("plain", func(t *testing.T) {
		request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"age":20}`))
		recorder := httptest.NewRecorder()
		echo.ServeHTTP(recorder, request)

		assert.Equal(t, `{"age":20}`, recorder.Body.String())
	})

	for name, body := range map[string][]byte{
		"not gzip":         []byte(`not gzip`),
		"empty body":       {},
		"truncated header": gzipString(t, `{"age":20}`)[:5],
	} {
		t.Run(name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
			request.Header.Set("Content-Encoding", "gzip")
			recorder := httptest.NewRecorder()
			echo.ServeHTTP(recorder, request)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

			var appErr apperror.Error
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &appErr))
			assert.Equal(t, apperror.TypeValidation, appErr.Type)
			assert.Equal(t, "Invalid gzip request body", appErr.Message)
		})
	}
}
