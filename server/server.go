// Package server contains the plumbing shared by every HTTP-exposed
// instrument: typed JSON payloads and route tables.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"sort"
	"strings"

	"goji.io"
)

// FloatT is a struct with a single float64 field, used for json IO
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, used for json IO
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, used for json IO
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, used for json IO
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a struct containing the basic types and the metadata
// needed to reply to an HTTP request with a typed JSON body
type HumanPayload struct {
	// T holds the type of data actually contained in the payload
	T types.BasicKind

	Bool   bool
	Int    int
	Float  float64
	String string
}

// EncodeAndRespond writes the payload to w as JSON with the appropriate
// single-field wrapper
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var obj interface{}
	switch hp.T {
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.String:
		obj = StrT{Str: hp.String}
	default:
		http.Error(w, fmt.Sprintf("unknown payload kind %v", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Println("error encoding response payload:", err)
	}
}

// RouteTable maps goji patterns to handler funcs
type RouteTable map[goji.Pattern]http.HandlerFunc

// Endpoints returns the sorted list of patterns in the table
func (rt RouteTable) Endpoints() []string {
	endpts := make([]string, 0, len(rt))
	for k := range rt {
		endpts = append(endpts, fmt.Sprint(k))
	}
	sort.Strings(endpts)
	return endpts
}

// Bind registers every route in the table on the mux
func (rt RouteTable) Bind(m *goji.Mux) {
	for k, v := range rt {
		m.HandleFunc(k, v)
	}
}

// HTTPer is a type which can yield its route table for binding to a mux
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize ensures an endpoint is of the form "/a/b/*",
// which is needed to mount a submux
func SubMuxSanitize(str string) string {
	if !strings.HasPrefix(str, "/") {
		str = "/" + str
	}
	str = strings.TrimSuffix(str, "/")
	if !strings.HasSuffix(str, "/*") {
		str = str + "/*"
	}
	return str
}
