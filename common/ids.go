package common

// JobID and SessionID are globally-unique opaque 128-bit values, backed by
// the same RFC 4122 UUID representation used throughout the grid core.
type JobID UUID

func NewJobID() JobID { return JobID(NewUUID()) }

func (id JobID) String() string { return UUID(id).String() }

func (id JobID) MarshalJSON() ([]byte, error) { return UUID(id).MarshalJSON() }

func (id *JobID) UnmarshalJSON(b []byte) error {
	var u UUID
	if err := u.UnmarshalJSON(b); err != nil {
		return err
	}
	*id = JobID(u)
	return nil
}

func ParseJobID(s string) (JobID, error) {
	u, err := ParseUUID(s)
	return JobID(u), err
}

type SessionID UUID

func NewSessionID() SessionID { return SessionID(NewUUID()) }

func (id SessionID) String() string { return UUID(id).String() }

func (id SessionID) MarshalJSON() ([]byte, error) { return UUID(id).MarshalJSON() }

func (id *SessionID) UnmarshalJSON(b []byte) error {
	var u UUID
	if err := u.UnmarshalJSON(b); err != nil {
		return err
	}
	*id = SessionID(u)
	return nil
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := ParseUUID(s)
	return SessionID(u), err
}

// NodeID identifies a cluster member; origin nodes and the local node are
// both expressed this way.
type NodeID UUID

func NewNodeID() NodeID { return NodeID(NewUUID()) }

func (id NodeID) String() string { return UUID(id).String() }
