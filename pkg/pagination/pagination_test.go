package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=5", 5, 0},
		{"limit=500", MaxLimit, 0},
		{"limit=-3", DefaultLimit, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=10&page=3", 10, 20},
		{"limit=10&page=2&offset=99", 10, 10},
		{"offset=-4", DefaultLimit, 0},
		{"page=0", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%q: expected limit=%d offset=%d, got limit=%d offset=%d",
				tt.query, tt.wantLimit, tt.wantOffset, p.Limit, p.Offset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]int{1, 2}, 25, Params{Limit: 10, Offset: 10})
	if resp.Page != 2 {
		t.Errorf("expected page 2, got %d", resp.Page)
	}
	if !resp.HasMore {
		t.Error("expected has_more for 10+10 < 25")
	}

	last := NewResponse([]int{1}, 25, Params{Limit: 10, Offset: 20})
	if last.HasMore {
		t.Error("expected no more results on last page")
	}
}
