package respond

import (
	"encoding/json"
	"net/http"
)

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a 200 response with the given payload.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, response{Success: true, Data: data})
}

// Created writes a 201 response with the given payload.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, response{Success: true, Data: data})
}

// JSON writes a 200 response with a raw body, for endpoints with a fixed
// wire format.
func JSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(data)
}

// Fail writes an error response.
func Fail(w http.ResponseWriter, status int, err error) {
	write(w, status, response{Success: false, Error: err.Error()})
}
