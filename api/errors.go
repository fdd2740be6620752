package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBody limits the size of request bodies.
const maxBody = 1 << 20

// AppError is an error replied to the client with its status code.
type AppError struct {
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Message
}

func badRequest(msg string) *AppError {
	return &AppError{Message: msg, StatusCode: http.StatusBadRequest}
}

func notFound(msg string) *AppError {
	return &AppError{Message: msg, StatusCode: http.StatusNotFound}
}

func unauthorized(msg string) *AppError {
	return &AppError{Message: msg, StatusCode: http.StatusUnauthorized}
}

func internal(format string, a ...interface{}) *AppError {
	return &AppError{Message: fmt.Sprintf(format, a...), StatusCode: http.StatusInternalServerError}
}

// Response is the body replied to the client. Successful replies carry "success": true next to their data.
type Response map[string]interface{}

// reply writes res with status, or the error body when err is set. A zero status means 200. Errors that are not an
// AppError are replied as 500 with their message.
func reply(w http.ResponseWriter, r *http.Request, status int, res Response, err error) {
	if status == 0 {
		status = http.StatusOK
	}

	if err != nil {
		var ae *AppError
		if errors.As(err, &ae) {
			status = ae.StatusCode
		} else {
			status = http.StatusInternalServerError
		}

		if status >= http.StatusInternalServerError {
			logger(r).Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		}

		res = Response{"success": false, "error": err.Error()}
	} else {
		if res == nil {
			res = Response{}
		}

		res["success"] = true
	}

	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads the JSON body of r into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return badRequest("Invalid JSON body")
	}

	return nil
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	reply(w, r, 0, nil, notFound("Route not found"))
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	reply(w, r, 0, nil, &AppError{Message: "Method not allowed", StatusCode: http.StatusMethodNotAllowed})
}
