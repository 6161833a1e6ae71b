package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-roster-api/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func serve(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestResponseEnvelopes(t *testing.T) {
	cases := []struct {
		name        string
		handler     fiber.Handler
		status      int
		success     bool
		message     string
		withData    bool
		withMeta    bool
		withDetails bool
	}{
		{
			name: "paged list",
			handler: func(c *fiber.Ctx) error {
				return utils.OK(c, []string{"Ada", "Linus"}, "", fiber.Map{"page": 1, "total": 2})
			},
			status: fiber.StatusOK, success: true, message: "success", withData: true, withMeta: true,
		},
		{
			name: "created",
			handler: func(c *fiber.Ctx) error {
				return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student created", fiber.Map{"id": 7})
			},
			status: fiber.StatusCreated, success: true, message: "student created", withData: true,
		},
		{
			name: "zero status falls back to ok",
			handler: func(c *fiber.Ctx) error {
				return utils.SendSuccessWithStatus(c, 0, "", nil)
			},
			status: fiber.StatusOK, success: true, message: "success",
		},
		{
			name: "auth failure with kind",
			handler: func(c *fiber.Ctx) error {
				return utils.Fail(c, fiber.StatusForbidden, "code not issued", fiber.Map{"kind": "code_not_issued"})
			},
			status: fiber.StatusForbidden, message: "code not issued", withDetails: true,
		},
		{
			name: "bare error",
			handler: func(c *fiber.Ctx) error {
				return utils.SendError(c, fiber.StatusConflict, "")
			},
			status: fiber.StatusConflict, message: "error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := serve(t, tc.handler)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.success, body.Success)
			require.Equal(t, tc.message, body.Message)
			require.Equal(t, tc.withData, len(body.Data) > 0)
			require.Equal(t, tc.withMeta, len(body.Meta) > 0)
			require.Equal(t, tc.withDetails, len(body.Details) > 0)
		})
	}
}

func TestFailDetailsCarryKind(t *testing.T) {
	_, body := serve(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusConflict, "ambiguous", fiber.Map{"kind": "ambiguous_student_record"})
	})

	var details map[string]string
	require.NoError(t, json.Unmarshal(body.Details, &details))
	require.Equal(t, "ambiguous_student_record", details["kind"])
}
