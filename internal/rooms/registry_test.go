package rooms

import (
	"fmt"
	"sync"
	"testing"
)

func TestParseRoomKey(t *testing.T) {
	tests := []struct {
		in      string
		want    RoomKey
		wantErr bool
	}{
		{"workspace:acme", RoomKey{KindWorkspace, "acme"}, false},
		{"channel:general", RoomKey{KindChannel, "general"}, false},
		{"conversation:abc123", RoomKey{KindConversation, "abc123"}, false},
		{"bot:user-1", RoomKey{KindBot, "user-1"}, false},
		{"channel:", RoomKey{}, true},
		{"nope:general", RoomKey{}, true},
		{"general", RoomKey{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRoomKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRoomKey(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRoomKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoomKeyString(t *testing.T) {
	key := ChannelRoom("general")
	if key.String() != "channel:general" {
		t.Fatalf("String() = %q, want %q", key.String(), "channel:general")
	}
	round, err := ParseRoomKey(key.String())
	if err != nil {
		t.Fatalf("ParseRoomKey() error = %v", err)
	}
	if round != key {
		t.Fatalf("round trip = %v, want %v", round, key)
	}
}

func TestJoinReturnsRoster(t *testing.T) {
	reg := NewRegistry()
	room := ChannelRoom("general")

	roster := reg.Join(room, Member{ConnID: "c1", UserID: "u1"})
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
	if roster[0].Status != StatusOnline {
		t.Errorf("status = %q, want %q", roster[0].Status, StatusOnline)
	}

	roster = reg.Join(room, Member{ConnID: "c2", UserID: "u2"})
	if len(roster) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster))
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	room := ChannelRoom("general")

	reg.Join(room, Member{ConnID: "c1", UserID: "u1"})
	roster := reg.Join(room, Member{ConnID: "c1", UserID: "u1", Username: "renamed"})

	if len(roster) != 1 {
		t.Fatalf("roster size after re-join = %d, want 1", len(roster))
	}
	if roster[0].Username != "renamed" {
		t.Errorf("re-join did not overwrite membership: %+v", roster[0])
	}
	if got := reg.Sessions("c1"); len(got) != 1 {
		t.Errorf("sessions = %v, want exactly one room", got)
	}
}

func TestLeaveGarbageCollectsEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	room := ChannelRoom("general")

	reg.Join(room, Member{ConnID: "c1", UserID: "u1"})
	m, ok := reg.Leave(room, "c1")
	if !ok {
		t.Fatal("Leave() reported not-present for an actual member")
	}
	if m.UserID != "u1" {
		t.Errorf("removed member = %+v, want u1", m)
	}
	if n := reg.RoomCount(""); n != 0 {
		t.Fatalf("room count after last leave = %d, want 0 (room must be deleted, not emptied)", n)
	}
}

func TestLeaveUnknownIsNoOp(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Leave(ChannelRoom("general"), "ghost"); ok {
		t.Fatal("Leave() of a never-joined room reported a removal")
	}

	reg.Join(ChannelRoom("general"), Member{ConnID: "c1", UserID: "u1"})
	if _, ok := reg.Leave(ChannelRoom("general"), "ghost"); ok {
		t.Fatal("Leave() for a non-member connection reported a removal")
	}
	if len(reg.Members(ChannelRoom("general"))) != 1 {
		t.Fatal("no-op leave disturbed the roster")
	}
}

func TestDrainRemovesEverything(t *testing.T) {
	reg := NewRegistry()
	joined := []RoomKey{
		ChannelRoom("general"),
		ChannelRoom("random"),
		WorkspaceRoom("acme"),
	}
	for _, room := range joined {
		reg.Join(room, Member{ConnID: "c1", UserID: "u1"})
	}
	reg.Join(ChannelRoom("general"), Member{ConnID: "c2", UserID: "u2"})

	drained := reg.Drain("c1")
	if len(drained) != len(joined) {
		t.Fatalf("drained %d rooms, want %d", len(drained), len(joined))
	}
	for _, d := range drained {
		if d.Member.UserID != "u1" {
			t.Errorf("drained member for %v = %+v, want user u1", d.Room, d.Member)
		}
	}
	if got := reg.Sessions("c1"); len(got) != 0 {
		t.Errorf("sessions after drain = %v, want empty", got)
	}
	for _, room := range joined {
		for _, m := range reg.Members(room) {
			if m.ConnID == "c1" {
				t.Errorf("connection still present in %v after drain", room)
			}
		}
	}
	// Second drain is a no-op.
	if again := reg.Drain("c1"); len(again) != 0 {
		t.Errorf("second drain returned %v, want empty", again)
	}
	// c2 keeps general alive.
	if len(reg.Members(ChannelRoom("general"))) != 1 {
		t.Error("drain removed an unrelated member")
	}
}

func TestMirrorInvariant(t *testing.T) {
	reg := NewRegistry()
	conns := []string{"c1", "c2", "c3"}
	roomsUnder := []RoomKey{ChannelRoom("a"), ChannelRoom("b"), WorkspaceRoom("w"), BotRoom("u1")}

	for i, c := range conns {
		for j, room := range roomsUnder {
			if (i+j)%2 == 0 {
				reg.Join(room, Member{ConnID: c, UserID: fmt.Sprintf("u%d", i)})
			}
		}
	}
	reg.Leave(ChannelRoom("a"), "c1")
	reg.Drain("c3")

	checkMirror(t, reg, conns, roomsUnder)
}

func checkMirror(t *testing.T, reg *Registry, conns []string, keys []RoomKey) {
	t.Helper()
	for _, c := range conns {
		inSessions := make(map[RoomKey]bool)
		for _, room := range reg.Sessions(c) {
			inSessions[room] = true
		}
		for _, room := range keys {
			member := false
			for _, m := range reg.Members(room) {
				if m.ConnID == c {
					member = true
				}
			}
			if member != inSessions[room] {
				t.Errorf("mirror broken for conn %s room %v: member=%v sessions=%v", c, room, member, inSessions[room])
			}
		}
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()
	room := ChannelRoom("busy")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			for j := 0; j < 100; j++ {
				reg.Join(room, Member{ConnID: conn, UserID: conn})
				reg.Members(room)
				reg.Leave(room, conn)
			}
			reg.Drain(conn)
		}(i)
	}
	wg.Wait()

	if n := reg.RoomCount(""); n != 0 {
		t.Fatalf("room count after churn = %d, want 0", n)
	}
}

func TestRoomCountByKind(t *testing.T) {
	reg := NewRegistry()
	reg.Join(ChannelRoom("a"), Member{ConnID: "c1", UserID: "u1"})
	reg.Join(ChannelRoom("b"), Member{ConnID: "c1", UserID: "u1"})
	reg.Join(WorkspaceRoom("w"), Member{ConnID: "c1", UserID: "u1"})

	if n := reg.RoomCount(KindChannel); n != 2 {
		t.Errorf("channel rooms = %d, want 2", n)
	}
	if n := reg.RoomCount(KindWorkspace); n != 1 {
		t.Errorf("workspace rooms = %d, want 1", n)
	}
	if n := reg.RoomCount(""); n != 3 {
		t.Errorf("total rooms = %d, want 3", n)
	}
}
