package ws

import "testing"

func TestRegistry_GroupMembership(t *testing.T) {
	r := newRegistry()
	r.add(newConnection("c1", nil))
	r.add(newConnection("c2", nil))
	r.add(newConnection("c3", nil))

	r.joinGroup("c1", "abc")
	r.joinGroup("c2", "abc")
	r.joinGroup("c3", "xyz")
	r.joinGroup("ghost", "abc") // unknown connection: ignored

	if got := r.members("abc", ""); len(got) != 2 {
		t.Fatalf("abc has %d members, want 2", len(got))
	}
	if got := r.members("abc", "c1"); len(got) != 1 || got[0].id != "c2" {
		t.Fatalf("members except c1 = %v", ids(got))
	}
	if got := r.members("xyz", ""); len(got) != 1 || got[0].id != "c3" {
		t.Fatalf("xyz members = %v", ids(got))
	}
	if got := r.members("nope", ""); len(got) != 0 {
		t.Fatalf("unknown group should be empty, got %v", ids(got))
	}
}

func TestRegistry_RemoveLeavesAllGroups(t *testing.T) {
	r := newRegistry()
	r.add(newConnection("c1", nil))
	r.joinGroup("c1", "abc")

	r.remove("c1")
	if r.get("c1") != nil {
		t.Fatalf("connection still present after remove")
	}
	if got := r.members("abc", ""); len(got) != 0 {
		t.Fatalf("removed connection still in group: %v", ids(got))
	}
}

func TestConnection_EnqueueDropsWhenFull(t *testing.T) {
	c := newConnection("c1", nil)
	for i := 0; i < outQueue*2; i++ {
		c.enqueue([]byte("x")) // must not block
	}
	if len(c.out) != outQueue {
		t.Fatalf("queue length = %d, want %d", len(c.out), outQueue)
	}
}

func ids(conns []*connection) []string {
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.id
	}
	return out
}
