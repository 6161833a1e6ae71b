// Package issuer talks to the verification code relay.
package issuer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const sendPath = "/send-verification-code"

//go:embed schema/send_verification_code.schema.json
var responseSchema []byte

// ResponseSchema returns the JSON schema of the relay send-verification-code response.
func ResponseSchema() []byte {
	return append([]byte(nil), responseSchema...)
}

var (
	// ErrRejected means the relay answered but reported a failure.
	ErrRejected = errors.New("relay rejected the request")
	// ErrInvalidResponse means the relay answered with a body outside the contract.
	ErrInvalidResponse = errors.New("relay response violates contract")
	// ErrUnavailable means the relay could not be reached.
	ErrUnavailable = errors.New("relay unavailable")
)

// Result is a delivered verification code.
type Result struct {
	Code       string
	IdentityID string
}

type request struct {
	StudentEmail string `json:"studentEmail"`
	StudentName  string `json:"studentName"`
}

type response struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	VerificationCode string  `json:"verificationCode"`
	IdentityID       *string `json:"firebaseUid"`
}

type reply struct {
	status int
	body   []byte
	errs   []error
}

// Client calls the relay over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	schema  *jsonschema.Schema
}

// CompileSchema compiles the relay response contract.
func CompileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("send_verification_code.schema.json", bytes.NewReader(responseSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("send_verification_code.schema.json")
}

// New constructs a relay client. timeout bounds every call; zero means 10s.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("relay base url must be provided")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	schema, err := CompileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile relay schema: %w", err)
	}

	return &Client{baseURL: baseURL, timeout: timeout, schema: schema}, nil
}

// Issue asks the relay to generate and email a code for the student.
func (c *Client) Issue(ctx context.Context, email, name string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	agent := fiber.Post(c.baseURL + sendPath)
	agent.JSON(request{StudentEmail: email, StudentName: name})
	agent.Timeout(timeout)

	// The fiber agent takes no context. A cancelled caller returns at once and the abandoned call
	// ends on its own timeout.
	done := make(chan reply, 1)
	go func() {
		status, body, errs := agent.Bytes()
		done <- reply{status: status, body: body, errs: errs}
	}()

	var answer reply
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case answer = <-done:
	}

	status, body, errs := answer.status, answer.body, answer.errs
	if len(errs) > 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}

	var document interface{}
	if err := json.Unmarshal(body, &document); err != nil {
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			return Result{}, fmt.Errorf("%w: status %d", ErrRejected, status)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := c.schema.Validate(document); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var payload response
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices || !payload.Success {
		message := payload.Message
		if message == "" {
			message = fmt.Sprintf("status %d", status)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrRejected, message)
	}

	result := Result{Code: payload.VerificationCode}
	if payload.IdentityID != nil {
		result.IdentityID = *payload.IdentityID
	}
	return result, nil
}
