package client

import (
	"github.com/goccy/go-json"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
)

type sentEvent struct {
	TempID  string          `json:"tempId"`
	GroupID int64           `json:"groupId"`
	Message json.RawMessage `json:"message"`
}

type messageEvent struct {
	Message models.Message `json:"message"`
}

type groupMessageEvent struct {
	GroupID int64               `json:"groupId"`
	Message models.GroupMessage `json:"message"`
}

type refEvent struct {
	MessageID   int64   `json:"messageId"`
	GroupID     int64   `json:"groupId"`
	ForEveryone bool    `json:"forEveryone"`
	ReaderID    string  `json:"readerId"`
	MessageIDs  []int64 `json:"messageIds"`
}

type presenceEvent struct {
	UserID  string   `json:"userId"`
	UserIDs []string `json:"userIds"`
}

// handle applies one server event to local state, then hands it to watchers.
func (s *Session) handle(ev Event) {
	if err := s.apply(ev); err != nil {
		logging.Component("client").Debug().Err(err).Str("event", ev.Name).Msg("ignored malformed event")
	}
	s.mu.Lock()
	watchers := s.watchers
	s.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- ev:
		default:
		}
	}
}

func (s *Session) apply(ev Event) error {
	switch ev.Name {
	case "message:sent":
		var e sentEvent
		var m models.Message
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		if err := json.Unmarshal(e.Message, &m); err != nil {
			return err
		}
		s.confirm(DirectKey(m.ReceiverID), e.TempID, EntryFromMessage(m))

	case "group:message:sent":
		var e sentEvent
		var m models.GroupMessage
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		if err := json.Unmarshal(e.Message, &m); err != nil {
			return err
		}
		s.confirm(GroupKey(m.GroupID), e.TempID, EntryFromGroupMessage(m))

	case "message:new", "message:edited", "message:pinned", "message:unpinned":
		var e messageEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		peer := e.Message.SenderID
		if peer == s.UserID {
			peer = e.Message.ReceiverID
		}
		key := DirectKey(peer)
		entry := EntryFromMessage(e.Message)
		switch ev.Name {
		case "message:new":
			s.Timeline.Upsert(key, entry)
			s.Recency.Touch(key, previewOf(entry), entry.CreatedAt, e.Message.SenderID != s.UserID)
		case "message:edited":
			s.Timeline.ConfirmEdit(key, entry)
		default:
			s.Timeline.SetPinned(key, entry.ID, ev.Name == "message:pinned")
		}

	case "message:delivered":
		var e refEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		if key, ok := s.Timeline.Locate(e.MessageID); ok {
			s.Timeline.AdvanceStatus(key, e.MessageID, models.StatusDelivered)
		}

	case "message:read":
		var e refEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		for _, id := range e.MessageIDs {
			key, ok := s.Timeline.Locate(id)
			if !ok {
				continue
			}
			s.Timeline.AdvanceStatus(key, id, models.StatusRead)
			if e.ReaderID == s.UserID {
				s.Recency.MarkRead(key)
			}
		}

	case "message:deleted", "group:message:deleted":
		var e refEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		if key, ok := s.Timeline.Locate(e.MessageID); ok {
			s.Timeline.Delete(key, e.MessageID, e.ForEveryone)
		}

	case "group:message:new", "group:message:edited":
		var e groupMessageEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		key := GroupKey(e.Message.GroupID)
		entry := EntryFromGroupMessage(e.Message)
		if ev.Name == "group:message:edited" {
			s.Timeline.ConfirmEdit(key, entry)
			return nil
		}
		s.Timeline.Upsert(key, entry)
		s.Recency.Touch(key, previewOf(entry), entry.CreatedAt, e.Message.SenderID != s.UserID)

	case "group:message:pinned", "group:message:unpinned":
		var e refEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		s.Timeline.SetPinned(GroupKey(e.GroupID), e.MessageID, ev.Name == "group:message:pinned")

	case "group:deleted", "group:removed", "group:left":
		var e refEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		s.Recency.Remove(GroupKey(e.GroupID))

	case "users:online", "user:online", "user:offline":
		var e presenceEvent
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return err
		}
		s.mu.Lock()
		for _, id := range e.UserIDs {
			s.online[id] = true
		}
		if e.UserID != "" {
			s.online[e.UserID] = ev.Name == "user:online"
		}
		s.mu.Unlock()
	}
	return nil
}

// confirm settles an optimistic entry from the push that precedes the request ack.
func (s *Session) confirm(key, tempID string, server Entry) {
	if tempID == "" {
		s.Timeline.Upsert(key, server)
		return
	}
	if op, ok := s.Pending.Get(tempID); ok {
		key = op.Conv
	}
	if err := s.Timeline.Ack(key, tempID, server); err != nil {
		s.Timeline.Upsert(key, server)
	}
	_ = s.Pending.Confirm(tempID)
}
