package apierr

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusForKnownKinds(t *testing.T) {
	cases := map[Kind]int{
		BadRequest:      http.StatusBadRequest,
		PayloadTooLarge: http.StatusRequestEntityTooLarge,
		QueueFull:       http.StatusServiceUnavailable,
		NoHealthyNodes:  http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		if got := StatusFor(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestWriteSetsStatusAndBody(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, New(NotFound, "no such file"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected a JSON body")
	}
}
