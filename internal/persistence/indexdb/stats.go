package indexdb

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	BoardsOpened    int64 `json:"boardsOpened"`
	BoardsLive      int64 `json:"boardsLive"`
	Joins           int64 `json:"joins"`
	Leaves          int64 `json:"leaves"`
	Saves           int64 `json:"saves"`
	ActionsAccepted int64 `json:"actionsAccepted"`
	ActionsRejected int64 `json:"actionsRejected"`
}

func (s *SQLiteIndex) Stats() (Stats, error) {
	var out Stats
	queries := []struct {
		q    string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM boards`, &out.BoardsOpened},
		{`SELECT COUNT(*) FROM boards WHERE closed_at IS NULL`, &out.BoardsLive},
		{`SELECT COUNT(*) FROM joins`, &out.Joins},
		{`SELECT COUNT(*) FROM leaves`, &out.Leaves},
		{`SELECT COUNT(*) FROM saves`, &out.Saves},
		{`SELECT COUNT(*) FROM actions WHERE accepted=1`, &out.ActionsAccepted},
		{`SELECT COUNT(*) FROM actions WHERE accepted=0`, &out.ActionsRejected},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.q).Scan(q.dest); err != nil {
			return out, err
		}
	}
	return out, nil
}
