package roomsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shiftdesk/warm-transfer/internal/token"
)

var testMinter = token.NewMinter("devkey", "devsecret", 0)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Tokens: testMinter})
}

func TestIsMember(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody listParticipantsRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(listParticipantsResponse{
			Participants: []participant{
				{Identity: "caller", State: "ACTIVE"},
				{Identity: "agent-a", State: "ACTIVE"},
			},
		})
	})

	member, err := client.IsMember(context.Background(), "room-1", "agent-a")
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if !member {
		t.Error("connected participant reported as non-member")
	}

	if gotPath != "/twirp/livekit.RoomService/ListParticipants" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.Room != "room-1" {
		t.Errorf("request room = %q", gotBody.Room)
	}

	raw, ok := strings.CutPrefix(gotAuth, "Bearer ")
	if !ok {
		t.Fatalf("authorization = %q, want bearer token", gotAuth)
	}
	claims, err := testMinter.Parse(raw)
	if err != nil {
		t.Fatalf("service token does not verify: %v", err)
	}
	if !claims.Video.RoomAdmin || claims.Video.Room != "room-1" {
		t.Errorf("service grant = %+v, want room-scoped admin", claims.Video)
	}

	member, err = client.IsMember(context.Background(), "room-1", "agent-z")
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if member {
		t.Error("absent identity reported as member")
	}
}

func TestIsMemberMissingRoom(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code": "not_found",
			"msg":  "requested room does not exist",
		})
	})

	member, err := client.IsMember(context.Background(), "gone", "agent-a")
	if err != nil {
		t.Fatalf("missing room should not error: %v", err)
	}
	if member {
		t.Error("missing room reported a member")
	}
}

func TestIsMemberServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})

	_, err := client.IsMember(context.Background(), "room-1", "agent-a")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestRemoveParticipant(t *testing.T) {
	var gotPath string
	var gotBody removeParticipantRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("{}"))
	})

	if err := client.RemoveParticipant(context.Background(), "room-1", "agent-a"); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}
	if gotPath != "/twirp/livekit.RoomService/RemoveParticipant" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.Room != "room-1" || gotBody.Identity != "agent-a" {
		t.Errorf("request = %+v", gotBody)
	}
}

func TestRemoveParticipantError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code": "not_found",
			"msg":  "participant does not exist",
		})
	})

	err := client.RemoveParticipant(context.Background(), "room-1", "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != "not_found" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestDisabledClient(t *testing.T) {
	client := New(Config{})

	if _, err := client.IsMember(context.Background(), "room-1", "agent-a"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("IsMember err = %v, want ErrNotConfigured", err)
	}
	if err := client.RemoveParticipant(context.Background(), "room-1", "agent-a"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RemoveParticipant err = %v, want ErrNotConfigured", err)
	}
}

func TestAdminBaseURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"wss://rooms.example.com", "https://rooms.example.com"},
		{"ws://localhost:7880", "http://localhost:7880"},
		{"https://rooms.example.com/", "https://rooms.example.com"},
		{"http://localhost:7880", "http://localhost:7880"},
	}
	for _, tc := range cases {
		if got := adminBaseURL(tc.in); got != tc.want {
			t.Errorf("adminBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
