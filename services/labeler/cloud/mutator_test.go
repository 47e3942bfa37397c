// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/labelops/services/labeler/gateway"
	"github.com/AleutianAI/labelops/services/labeler/transport"
)

// fakeRemote simulates one compute-style resource endpoint with
// fingerprint-checked writes.
type fakeRemote struct {
	mu sync.Mutex

	labels   map[string]string
	token    string
	tokenSeq int

	// injectWrite holds HTTP status codes to return for successive
	// write attempts before normal processing resumes.
	injectWrite []int

	// alwaysConflict rejects every write regardless of token, as if a
	// third party kept editing the resource.
	alwaysConflict bool

	writeCalls int
	getCalls   int
}

func newFakeRemote(labels map[string]string, token string) *fakeRemote {
	return &fakeRemote{labels: CloneLabels(labels), token: token}
}

func (f *fakeRemote) state() fingerprintPayload {
	return fingerprintPayload{Labels: CloneLabels(f.labels), LabelFingerprint: f.token}
}

func (f *fakeRemote) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/setLabels"):
			f.writeCalls++

			if len(f.injectWrite) > 0 {
				status := f.injectWrite[0]
				f.injectWrite = f.injectWrite[1:]
				writeAPIError(w, status)
				return
			}

			var body fingerprintPayload
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeAPIError(w, http.StatusBadRequest)
				return
			}
			if f.alwaysConflict || body.LabelFingerprint != f.token {
				writeAPIError(w, http.StatusPreconditionFailed)
				return
			}

			f.labels = CloneLabels(body.Labels)
			f.tokenSeq++
			f.token = fmt.Sprintf("tok-%d", f.tokenSeq+1)
			_ = json.NewEncoder(w).Encode(f.state())

		case r.Method == http.MethodGet:
			f.getCalls++
			_ = json.NewEncoder(w).Encode(f.state())

		default:
			writeAPIError(w, http.StatusNotFound)
		}
	})
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"injected"}}`, status)
}

func newTestMutator(t *testing.T, remote *fakeRemote) (*Mutator, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(remote.handler())
	t.Cleanup(srv.Close)

	retrier, err := transport.NewRetrier(transport.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2.0,
	}, IsTransient)
	require.NoError(t, err)

	api := NewRESTClient(srv.URL, srv.Client(), nil)
	return NewMutator(api, gateway.New(4), retrier, nil), srv
}

func TestMutator_Success(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.Labels = map[string]string{"env": "staging"}
	r.VersionToken = "tok-1"

	desired := map[string]string{"env": "prod", "team": "web"}
	require.NoError(t, m.UpdateLabels(context.Background(), r, desired))

	assert.True(t, LabelsEqual(r.Labels, desired), "in-memory labels must reflect server response")
	assert.NotEqual(t, "tok-1", r.VersionToken, "version token must change after a successful write")
	assert.Equal(t, 1, remote.writeCalls)
	assert.Equal(t, 0, remote.getCalls)
}

func TestMutator_Idempotence(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	desired := map[string]string{"env": "prod"}
	require.NoError(t, m.UpdateLabels(context.Background(), r, desired))
	afterFirst := CloneLabels(r.Labels)

	// Second apply of the same desired set uses the refreshed token and
	// must succeed without touching label content.
	require.NoError(t, m.UpdateLabels(context.Background(), r, desired))
	assert.True(t, LabelsEqual(afterFirst, r.Labels))
	assert.Equal(t, 2, remote.writeCalls)
}

func TestMutator_ConflictRecovery(t *testing.T) {
	// Server is at tok-9; the client's snapshot is stale at tok-1.
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-9")
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	desired := map[string]string{"env": "prod"}
	require.NoError(t, m.UpdateLabels(context.Background(), r, desired))

	assert.True(t, LabelsEqual(r.Labels, desired))
	assert.Equal(t, 2, remote.writeCalls, "one conflicted write, one retried write")
	assert.Equal(t, 1, remote.getCalls, "exactly one refresh read")
}

func TestMutator_DoubleConflictIsFatal(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	remote.alwaysConflict = true
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	err := m.UpdateLabels(context.Background(), r, map[string]string{"env": "prod"})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "res-1", conflict.ResourceID)
	assert.Equal(t, 2, remote.writeCalls, "no unbounded conflict retry loop")
	assert.Equal(t, 1, remote.getCalls)
}

func TestMutator_AuthErrorSurfacesImmediately(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	remote.injectWrite = []int{http.StatusForbidden}
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	err := m.UpdateLabels(context.Background(), r, map[string]string{"env": "prod"})

	var auth *AuthError
	require.ErrorAs(t, err, &auth)
	assert.Equal(t, http.StatusForbidden, auth.StatusCode)
	assert.Equal(t, 1, remote.writeCalls, "auth failures are not retried")
}

func TestMutator_TransientRetried(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	remote.injectWrite = []int{http.StatusTooManyRequests}
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	desired := map[string]string{"env": "prod"}
	require.NoError(t, m.UpdateLabels(context.Background(), r, desired))
	assert.Equal(t, 2, remote.writeCalls, "429 then success")
	assert.True(t, LabelsEqual(r.Labels, desired))
}

func TestMutator_NonRetryableClientError(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	remote.injectWrite = []int{http.StatusNotFound}
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	err := m.UpdateLabels(context.Background(), r, map[string]string{"env": "prod"})

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
	assert.Equal(t, 1, remote.writeCalls)
}

func TestMutator_RetryExhaustion(t *testing.T) {
	remote := newFakeRemote(map[string]string{"env": "staging"}, "tok-1")
	remote.injectWrite = []int{500, 500, 500}
	m, _ := newTestMutator(t, remote)

	r := testResource(KindInstance)
	r.VersionToken = "tok-1"

	err := m.UpdateLabels(context.Background(), r, map[string]string{"env": "prod"})

	var exhausted *transport.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted, "exhausted retries surface, never swallowed")
	var server *ServerError
	assert.True(t, errors.As(err, &server), "last failure remains inspectable")
	assert.Equal(t, 3, remote.writeCalls)
}

func TestIsTransient_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{ResourceID: "r"}, true},
		{"server error", &ServerError{ResourceID: "r", StatusCode: 503}, true},
		{"conflict", &ConflictError{ResourceID: "r"}, false},
		{"auth", &AuthError{StatusCode: 401}, false},
		{"remote 404", &RemoteError{ResourceID: "r", StatusCode: 404}, false},
		{"wrapped server error", fmt.Errorf("call: %w", &ServerError{StatusCode: 500}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
