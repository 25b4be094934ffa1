package sessions

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinRequiresConnection(t *testing.T) {
	m := NewManager()
	_, err := m.Join("c1", "d1")
	require.ErrorIs(t, err, ErrNotConnected)

	m.Connect("c1")
	_, err = m.Join("c1", "")
	require.ErrorIs(t, err, ErrEmptyDocumentID)
}

func TestStateMachine(t *testing.T) {
	m := NewManager()
	require.Equal(t, Disconnected, m.State("c1"))
	m.Connect("c1")
	require.Equal(t, Connected, m.State("c1"))
	_, err := m.Join("c1", "d1")
	require.NoError(t, err)
	require.Equal(t, Joined, m.State("c1"))
	m.OnDisconnect("c1")
	require.Equal(t, Disconnected, m.State("c1"))
	require.Equal(t, "joined", Joined.String())
}

func TestJoinIsIdempotent(t *testing.T) {
	m := NewManager()
	m.Connect("c1")

	first, err := m.Join("c1", "d1")
	require.NoError(t, err)
	require.True(t, first.Changed)
	require.NotNil(t, first.Joined)

	second, err := m.Join("c1", "d1")
	require.NoError(t, err)
	require.False(t, second.Changed)
	require.Nil(t, second.Joined)

	require.Equal(t, []string{"c1"}, m.MembersOf("d1"))
	require.Equal(t, 1, m.Count("d1"))
}

func TestJoinTransitionNamesExistingPeers(t *testing.T) {
	m := NewManager()
	for _, c := range []string{"a", "b", "c"} {
		m.Connect(c)
	}
	_, _ = m.Join("a", "d")
	_, _ = m.Join("b", "d")
	res, err := m.Join("c", "d")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, res.Joined.Peers)
	require.Equal(t, 3, res.Joined.Count)
	require.Equal(t, KindJoined, res.Joined.Kind)
}

func TestJoinElsewhereReplacesMembership(t *testing.T) {
	m := NewManager()
	m.Connect("c1")
	m.Connect("c2")
	_, _ = m.Join("c1", "d1")
	_, _ = m.Join("c2", "d1")

	res, err := m.Join("c1", "d2")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.NotNil(t, res.Left)
	require.Equal(t, "d1", res.Left.DocumentID)
	require.Equal(t, []string{"c2"}, res.Left.Peers)

	require.Equal(t, []string{"c2"}, m.MembersOf("d1"))
	require.Equal(t, []string{"c1"}, m.MembersOf("d2"))
	doc, ok := m.RoomOf("c1")
	require.True(t, ok)
	require.Equal(t, "d2", doc)
}

func TestLeave(t *testing.T) {
	m := NewManager()
	m.Connect("c1")
	m.Connect("c2")

	_, ok := m.Leave("c1")
	require.False(t, ok, "leave on a non-member is a no-op")
	_, ok = m.Leave("unknown")
	require.False(t, ok)

	_, _ = m.Join("c1", "d1")
	_, _ = m.Join("c2", "d1")
	tr, ok := m.Leave("c1")
	require.True(t, ok)
	require.Equal(t, KindLeft, tr.Kind)
	require.Equal(t, []string{"c2"}, tr.Peers)
	require.Equal(t, 1, tr.Count)
	require.Equal(t, Connected, m.State("c1"))

	_, ok = m.Leave("c1")
	require.False(t, ok)
}

func TestEmptyRoomsAreDropped(t *testing.T) {
	m := NewManager()
	m.Connect("c1")
	_, _ = m.Join("c1", "d1")
	require.Equal(t, 1, m.Rooms())
	m.Leave("c1")
	require.Equal(t, 0, m.Rooms())
	require.Empty(t, m.MembersOf("d1"))
	require.Empty(t, m.Snapshot())
}

func TestOnDisconnectRunsOnce(t *testing.T) {
	m := NewManager()
	m.Connect("c1")
	m.Connect("c2")
	_, _ = m.Join("c1", "d1")
	_, _ = m.Join("c2", "d1")

	tr, wasJoined := m.OnDisconnect("c1")
	require.True(t, wasJoined)
	require.Equal(t, []string{"c2"}, tr.Peers)

	_, wasJoined = m.OnDisconnect("c1")
	require.False(t, wasJoined)
	require.Equal(t, []string{"c2"}, m.MembersOf("d1"))

	_, err := m.Join("c1", "d1")
	require.ErrorIs(t, err, ErrNotConnected, "a disconnected connection cannot rejoin")
	require.Equal(t, 1, m.Connections())
}

func TestPeersOf(t *testing.T) {
	m := NewManager()
	m.Connect("a")
	m.Connect("b")
	_, _, ok := m.PeersOf("a")
	require.False(t, ok)

	_, _ = m.Join("a", "d")
	doc, peers, ok := m.PeersOf("a")
	require.True(t, ok)
	require.Equal(t, "d", doc)
	require.Empty(t, peers)

	_, _ = m.Join("b", "d")
	_, peers, _ = m.PeersOf("a")
	require.Equal(t, []string{"b"}, peers)
}

func TestConcurrentMembership(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			m.Connect(id)
			_, _ = m.Join(id, fmt.Sprintf("d%d", i%3))
			if i%2 == 0 {
				m.OnDisconnect(id)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range m.Snapshot() {
		total += n
	}
	require.Equal(t, 50, total)
	require.Equal(t, 50, m.Connections())
}
