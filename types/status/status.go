// Package status defines the externally observable state of a speed tracker.
//
// Status is a closed set of variants: Loading, Error, Ready and Stopped.
// The set is sealed by an unexported method, so switches like
//
//	switch st := s.(type) {
//	case status.Loading:
//	case status.Error:
//	case status.Ready:
//	case status.Stopped:
//	}
//
// cover every Status there will ever be.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindReady   Kind = "ready"
	KindStopped Kind = "stopped"
)

type Status interface {
	Kind() Kind
	String() string
	sealed()
}

// Loading means no speed is known yet.
type Loading struct{}

// Error carries a failure from the position source, verbatim.
type Error struct {
	Cause error
}

// Ready carries the latest instantaneous speed, in km/h.
type Ready struct {
	Speed float64
}

// Stopped means the trip is over. Average is the trip's mean speed in km/h,
// nil if there were no speeds to average.
type Stopped struct {
	Average *float64
}

func NewStopped(average float64) Stopped {
	return Stopped{Average: &average}
}

func (Loading) Kind() Kind { return KindLoading }
func (Error) Kind() Kind   { return KindError }
func (Ready) Kind() Kind   { return KindReady }
func (Stopped) Kind() Kind { return KindStopped }

func (Loading) sealed() {}
func (Error) sealed()   {}
func (Ready) sealed()   {}
func (Stopped) sealed() {}

func (Loading) String() string { return "Loading" }

func (e Error) String() string {
	if e.Cause == nil {
		return "Error(<nil>)"
	}
	return fmt.Sprintf("Error(%v)", e.Cause)
}

func (r Ready) String() string { return fmt.Sprintf("Ready(%.2f)", r.Speed) }

func (s Stopped) String() string {
	if s.Average == nil {
		return "Stopped(none)"
	}
	return fmt.Sprintf("Stopped(%.2f)", *s.Average)
}

// AverageOK returns the average and whether there was one.
func (s Stopped) AverageOK() (float64, bool) {
	if s.Average == nil {
		return 0, false
	}
	return *s.Average, true
}

// kinded is implemented by errors which know what kind of failure they are,
// eg. a denied permission.
type kinded interface {
	ErrorKind() string
}

// ErrorKind returns the kind of the first kinded error in err's chain,
// or "upstream" for anything else.
func ErrorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return "upstream"
}

// envelope is the JSON shape of a Status.
type envelope struct {
	Status    Kind     `json:"status"`
	Speed     *float64 `json:"speed,omitempty"`
	Average   *float64 `json:"average,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"kind,omitempty"`
}

// Marshal encodes a Status as JSON, eg.
//
//	{"status":"ready","speed":12.34}
//	{"status":"stopped","average":8.1}
//	{"status":"error","error":"location permission denied","kind":"permission_denied"}
func Marshal(s Status) ([]byte, error) {
	env := envelope{Status: s.Kind()}
	switch st := s.(type) {
	case Loading:
	case Error:
		if st.Cause != nil {
			env.Error = st.Cause.Error()
			env.ErrorKind = ErrorKind(st.Cause)
		}
	case Ready:
		speed := st.Speed
		env.Speed = &speed
	case Stopped:
		env.Average = st.Average
	default:
		return nil, fmt.Errorf("unknown status %T", s)
	}
	return json.Marshal(env)
}

// Unmarshal decodes JSON produced by Marshal.
// Error causes come back as plain errors carrying the message only.
func Unmarshal(data []byte) (Status, error) {
	env := envelope{}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Status {
	case KindLoading:
		return Loading{}, nil
	case KindError:
		return Error{Cause: errors.New(env.Error)}, nil
	case KindReady:
		if env.Speed == nil {
			return Ready{}, nil
		}
		return Ready{Speed: *env.Speed}, nil
	case KindStopped:
		return Stopped{Average: env.Average}, nil
	}
	return nil, fmt.Errorf("unknown status %q", env.Status)
}
