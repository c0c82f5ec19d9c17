package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"lan-chat/internal/logging"
	"lan-chat/internal/models"
)

// Identity is the reply of POST /api/identity.
type Identity struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Identify registers this machine, or refreshes an existing token.
func Identify(ctx context.Context, httpClient *http.Client, baseURL, hostname, token string) (Identity, error) {
	body, err := json.Marshal(map[string]string{"hostname": hostname, "token": token})
	if err != nil {
		return Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/api/identity", bytes.NewReader(body))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("identity request: HTTP %d", resp.StatusCode)
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", err)
	}
	return id, nil
}

// uploadJob is the payload of a media send until its file reference is known.
type uploadJob struct {
	kind     string
	fileName string
	data     []byte
	base     map[string]any
}

// Session ties a connection to the local optimistic state.
type Session struct {
	UserID   string
	Timeline *Timeline
	Recency  *Recency
	Pending  *PendingTable

	baseURL string
	token   string
	http    *http.Client
	conn    *Conn
	now     func() time.Time

	mu       sync.Mutex
	online   map[string]bool
	watchers []chan Event
}

// Connect dials the server and starts applying events to local state.
func Connect(ctx context.Context, baseURL string, id Identity) (*Session, error) {
	s := &Session{
		UserID:   id.User.ID,
		Timeline: NewTimeline(),
		Recency:  NewRecency(),
		Pending:  NewPendingTable(),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    id.Token,
		http:     &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
		online:   make(map[string]bool),
	}
	conn, err := Dial(ctx, baseURL, id.Token, s.handle)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// Conn exposes the underlying connection for requests the session does not wrap.
func (s *Session) Conn() *Conn { return s.conn }

// Close ends the session.
func (s *Session) Close() error { return s.conn.Close() }

// Watch returns a channel that receives every server event after it has been applied.
// Slow watchers miss events rather than stall the socket.
func (s *Session) Watch() <-chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// IsOnline reports the last known presence of a user.
func (s *Session) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// SendText sends a direct message and returns its correlation id.
func (s *Session) SendText(ctx context.Context, peerID, content string) (string, error) {
	payload := map[string]any{"receiverId": peerID, "content": content}
	return s.send(ctx, DirectKey(peerID), "message:send", payload, Entry{Content: content, Type: models.TypeText})
}

// SendGroupText sends a group message and returns its correlation id.
func (s *Session) SendGroupText(ctx context.Context, groupID int64, content string) (string, error) {
	payload := map[string]any{"groupId": groupID, "content": content}
	return s.send(ctx, GroupKey(groupID), "group:message:send", payload, Entry{Content: content, Type: models.TypeText})
}

func (s *Session) send(ctx context.Context, key, event string, payload map[string]any, entry Entry) (string, error) {
	tempID := uuid.NewString()
	payload["tempId"] = tempID
	entry.TempID = tempID
	entry.SenderID = s.UserID
	entry.Status = models.StatusSending
	entry.CreatedAt = s.now()

	s.Timeline.InsertOptimistic(key, entry)
	s.Recency.Touch(key, previewOf(entry), entry.CreatedAt, false)
	s.Pending.Add(tempID, event, key, payload, false)
	return tempID, s.dispatch(ctx, tempID)
}

// SendMedia uploads a file, then sends a message referencing it. The entry shows
// upload progress until the server has stored the file.
func (s *Session) SendMedia(ctx context.Context, peerID, kind, fileName string, data []byte) (string, error) {
	key := DirectKey(peerID)
	tempID := uuid.NewString()
	job := uploadJob{kind: kind, fileName: fileName, data: data, base: map[string]any{"receiverId": peerID, "tempId": tempID}}

	entry := Entry{
		TempID:    tempID,
		SenderID:  s.UserID,
		Type:      models.MessageType(kind),
		Status:    StatusUploading,
		FileName:  fileName,
		CreatedAt: s.now(),
	}
	s.Timeline.InsertOptimistic(key, entry)
	s.Recency.Touch(key, previewOf(entry), entry.CreatedAt, false)
	s.Pending.Add(tempID, "message:send", key, job, true)
	return tempID, s.upload(ctx, tempID, key, job)
}

func (s *Session) upload(ctx context.Context, tempID, key string, job uploadJob) error {
	file, err := s.uploadFile(ctx, job.kind, job.fileName, job.data, func(pct int) {
		_ = s.Timeline.SetProgress(key, tempID, pct)
		_ = s.Pending.Progress(tempID, pct)
	})
	if err != nil {
		s.fail(key, tempID, err)
		return err
	}
	payload := make(map[string]any, len(job.base)+4)
	for k, v := range job.base {
		payload[k] = v
	}
	payload["content"] = file.URL
	payload["type"] = job.kind
	payload["fileName"] = file.OriginalName
	payload["fileSize"] = file.Size
	_ = s.Pending.Uploaded(tempID, payload)
	return s.dispatch(ctx, tempID)
}

type uploadedFile struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Mimetype     string `json:"mimetype"`
}

func (s *Session) uploadFile(ctx context.Context, kind, fileName string, data []byte, progress func(int)) (uploadedFile, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return uploadedFile{}, err
	}
	if _, err := part.Write(data); err != nil {
		return uploadedFile{}, err
	}
	if err := w.Close(); err != nil {
		return uploadedFile{}, err
	}

	reader := &progressReader{r: &body, total: int64(body.Len()), report: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/upload/"+kind, reader)
	if err != nil {
		return uploadedFile{}, err
	}
	req.ContentLength = reader.total
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		Success bool         `json:"success"`
		Error   string       `json:"error"`
		Code    string       `json:"code"`
		File    uploadedFile `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploadedFile{}, fmt.Errorf("decode upload reply: %w", err)
	}
	if !out.Success {
		return uploadedFile{}, &RequestError{Code: out.Code, Message: out.Error}
	}
	return out.File, nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		if pct := int(p.read * 100 / p.total); pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}

func (s *Session) dispatch(ctx context.Context, tempID string) error {
	op, ok := s.Pending.Get(tempID)
	if !ok {
		return ErrUnknownOp
	}
	raw, err := s.conn.Request(ctx, op.Event, op.Payload)
	if err != nil {
		s.fail(op.Conv, tempID, err)
		return err
	}
	server, err := decodeAck(op.Event, raw)
	if err != nil {
		s.fail(op.Conv, tempID, err)
		return err
	}
	_ = s.Timeline.Ack(op.Conv, tempID, server)
	_ = s.Pending.Confirm(tempID)
	return nil
}

func (s *Session) fail(key, tempID string, err error) {
	_ = s.Timeline.Fail(key, tempID)
	_ = s.Pending.Fail(tempID, err.Error())
	logging.Component("client").Debug().Err(err).Str("temp_id", tempID).Msg("send failed")
}

func decodeAck(event string, raw json.RawMessage) (Entry, error) {
	if strings.HasPrefix(event, "group:") {
		var out struct {
			Message models.GroupMessage `json:"message"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return Entry{}, err
		}
		return EntryFromGroupMessage(out.Message), nil
	}
	var out struct {
		Message models.Message `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Entry{}, err
	}
	return EntryFromMessage(out.Message), nil
}

// Retry resends a failed operation, repeating the upload first when it never completed.
func (s *Session) Retry(ctx context.Context, tempID string) error {
	op, err := s.Pending.Retry(tempID)
	if err != nil {
		return err
	}
	if job, ok := op.Payload.(uploadJob); ok {
		if _, err := s.Timeline.Retry(op.Conv, tempID); err != nil {
			return err
		}
		return s.upload(ctx, tempID, op.Conv, job)
	}
	if _, err := s.Timeline.Retry(op.Conv, tempID); err != nil {
		return err
	}
	return s.dispatch(ctx, tempID)
}

// EditDirect edits a direct message optimistically and rolls back if the server refuses.
func (s *Session) EditDirect(ctx context.Context, peerID string, messageID int64, content string) error {
	return s.edit(ctx, DirectKey(peerID), "message:edit", messageID, content)
}

// EditGroup edits a group message optimistically.
func (s *Session) EditGroup(ctx context.Context, groupID, messageID int64, content string) error {
	return s.edit(ctx, GroupKey(groupID), "group:message:edit", messageID, content)
}

func (s *Session) edit(ctx context.Context, key, event string, messageID int64, content string) error {
	if err := s.Timeline.BeginEdit(key, messageID, content); err != nil {
		return err
	}
	raw, err := s.conn.Request(ctx, event, map[string]any{"messageId": messageID, "newContent": content})
	if err == nil {
		var server Entry
		if server, err = decodeAck(event, raw); err == nil {
			s.Timeline.ConfirmEdit(key, server)
			return nil
		}
	}
	if rerr := s.Timeline.RollbackEdit(key, messageID); rerr != nil && !errors.Is(rerr, ErrUnknownEntry) {
		return errors.Join(err, rerr)
	}
	return err
}

// MarkRead sends read receipts for a peer's messages.
func (s *Session) MarkRead(ctx context.Context, peerID string, messageIDs []int64) error {
	_, err := s.conn.Request(ctx, "message:read", map[string]any{"senderId": peerID, "messageIds": messageIDs})
	if err == nil {
		s.Recency.MarkRead(DirectKey(peerID))
	}
	return err
}

func previewOf(e Entry) string {
	if e.Type.IsMedia() {
		return "Sent a " + string(e.Type)
	}
	return e.Content
}
