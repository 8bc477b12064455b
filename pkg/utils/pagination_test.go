package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func parsePaginationForTest(t *testing.T, query string) PaginationParams {
	t.Helper()

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(ParsePagination(c))
	})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/?%s", query), nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("pagination request failed for query %q: %v", query, err)
	}
	defer resp.Body.Close()

	var parsed PaginationParams
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("failed to decode pagination response for query %q: %v", query, err)
	}
	return parsed
}

func TestParsePagination(t *testing.T) {
	testCases := []struct {
		name  string
		query string
		want  PaginationParams
	}{
		{name: "defaults", query: "", want: PaginationParams{Page: 1, Limit: 50, Offset: 0}},
		{name: "second page", query: "page=2&limit=10", want: PaginationParams{Page: 2, Limit: 10, Offset: 10}},
		{name: "negative page clamps", query: "page=-4&limit=10", want: PaginationParams{Page: 1, Limit: 10, Offset: 0}},
		{name: "limit capped", query: "limit=5000", want: PaginationParams{Page: 1, Limit: 200, Offset: 0}},
		{name: "garbage falls back", query: "page=x&limit=y", want: PaginationParams{Page: 1, Limit: 50, Offset: 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := parsePaginationForTest(t, tc.query)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}
