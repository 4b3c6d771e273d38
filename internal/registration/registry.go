// Package registration keeps per group member registrations and the short
// private conversation that collects them.
package registration

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/store"
)

const (
	StartPayloadPrefix = "register_"
	DefaultSessionTTL  = 30 * time.Minute
	unknownGroupTitle  = "Unknown Group"
)

type (
	Stage int

	Attendance string

	Session struct {
		GroupID   int64
		Stage     Stage
		Name      string
		StartedAt time.Time
	}
)

const (
	StageAwaitingName Stage = iota + 1
	StageAwaitingAttendance
)

const (
	AttendanceYes   Attendance = "yes"
	AttendanceNo    Attendance = "no"
	AttendanceMaybe Attendance = "maybe"
)

var (
	ErrNoSession         = errors.New("no registration in progress")
	ErrWrongStage        = errors.New("registration is at another step")
	ErrEmptyName         = errors.New("name is empty")
	ErrUnknownAttendance = errors.New("unknown attendance answer")
)

func ParseAttendance(s string) (Attendance, bool) {
	switch a := Attendance(strings.ToLower(s)); a {
	case AttendanceYes, AttendanceNo, AttendanceMaybe:
		return a, true
	}
	return "", false
}

// Registry stores registrations in the policy store and keeps in-progress
// sessions in memory. Sessions do not survive a restart.
type Registry struct {
	store      store.Store
	sessions   *xsync.MapOf[int64, Session]
	sessionTTL time.Duration
	now        func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.sessionTTL = ttl
	}
}

func NewRegistry(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:      s,
		sessions:   xsync.NewMapOf[int64, Session](),
		sessionTTL: DefaultSessionTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) getLogEntry() *log.Entry {
	return log.WithField("object", "Registry")
}

func (r *Registry) IsRegistered(ctx context.Context, groupID, userID int64) (bool, error) {
	name, ok, err := r.store.HGet(ctx, store.GroupRegistrationsKey(groupID), strconv.FormatInt(userID, 10))
	if err != nil {
		return false, err
	}
	return ok && name != "", nil
}

// Register writes the registration, the attendance answer, the user card and
// adds the group to the list of registered groups.
func (r *Registry) Register(ctx context.Context, groupID int64, user *api.User, name string, attendance Attendance) error {
	if user == nil {
		return errors.New("user is nil")
	}
	uid := strconv.FormatInt(user.ID, 10)
	if err := r.store.HSet(ctx, store.GroupRegistrationsKey(groupID), uid, name); err != nil {
		return errors.WithMessage(err, "store registration")
	}
	if attendance != "" {
		if err := r.store.HSet(ctx, store.GroupAttendanceKey(groupID), uid, string(attendance)); err != nil {
			return errors.WithMessage(err, "store attendance")
		}
	}
	userKey := store.UserInfoKey(user.ID)
	for field, value := range map[string]string{
		"user_id":    uid,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"username":   user.UserName,
	} {
		if err := r.store.HSet(ctx, userKey, field, value); err != nil {
			return errors.WithMessage(err, "store user info")
		}
	}
	if err := r.store.SAdd(ctx, store.KeyGroupsList, strconv.FormatInt(groupID, 10)); err != nil {
		return errors.WithMessage(err, "store group list")
	}
	r.getLogEntry().WithFields(log.Fields{"group_id": groupID, "user_id": user.ID}).Info("user registered")
	return nil
}

func (r *Registry) StoreGroupInfo(ctx context.Context, groupID int64, title string) error {
	if err := r.store.HSet(ctx, store.GroupInfoKey(groupID), "title", title); err != nil {
		return err
	}
	return r.store.SAdd(ctx, store.KeyGroupsList, strconv.FormatInt(groupID, 10))
}

func (r *Registry) GroupTitle(ctx context.Context, groupID int64) (string, error) {
	title, ok, err := r.store.HGet(ctx, store.GroupInfoKey(groupID), "title")
	if err != nil {
		return "", err
	}
	if !ok || title == "" {
		return unknownGroupTitle, nil
	}
	return title, nil
}

func (r *Registry) Registrations(ctx context.Context, groupID int64) (map[string]string, error) {
	return r.store.HGetAll(ctx, store.GroupRegistrationsKey(groupID))
}

func (r *Registry) Attendances(ctx context.Context, groupID int64) (map[string]string, error) {
	return r.store.HGetAll(ctx, store.GroupAttendanceKey(groupID))
}

// Groups lists the known group ids in a stable order.
func (r *Registry) Groups(ctx context.Context) ([]string, error) {
	groups, err := r.store.SMembers(ctx, store.KeyGroupsList)
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)
	return groups, nil
}

// Export writes the registrations of the group as CSV and returns how many
// members are registered.
func (r *Registry) Export(ctx context.Context, groupID int64, w io.Writer) (int, error) {
	names, err := r.Registrations(ctx, groupID)
	if err != nil {
		return 0, err
	}
	attendances, err := r.Attendances(ctx, groupID)
	if err != nil {
		return 0, err
	}
	userIDs := make([]string, 0, len(names))
	for uid := range names {
		userIDs = append(userIDs, uid)
	}
	sort.Strings(userIDs)

	out := csv.NewWriter(w)
	if err := out.Write([]string{"User ID", "Telegram Name", "Username", "Real Name", "Attendance", "Group ID"}); err != nil {
		return 0, err
	}
	group := strconv.FormatInt(groupID, 10)
	for _, uid := range userIDs {
		info, err := r.store.HGetAll(ctx, store.UserInfoKey(parseUserID(uid)))
		if err != nil {
			return 0, errors.WithMessage(err, "read user info")
		}
		telegramName := strings.TrimSpace(info["first_name"] + " " + info["last_name"])
		if telegramName == "" {
			telegramName = "Unknown"
		}
		username := info["username"]
		if username == "" {
			username = "None"
		}
		attendance := attendances[uid]
		if attendance == "" {
			attendance = "Unknown"
		}
		if err := out.Write([]string{uid, telegramName, username, names[uid], attendance, group}); err != nil {
			return 0, err
		}
	}
	out.Flush()
	return len(userIDs), out.Error()
}

func parseUserID(uid string) int64 {
	id, _ := strconv.ParseInt(uid, 10, 64)
	return id
}

// Begin starts or restarts the conversation for userID.
func (r *Registry) Begin(userID, groupID int64) Session {
	s := Session{GroupID: groupID, Stage: StageAwaitingName, StartedAt: r.now()}
	r.sessions.Store(userID, s)
	return s
}

// Session returns the live session of userID. Expired sessions are dropped.
func (r *Registry) Session(userID int64) (Session, bool) {
	s, ok := r.sessions.Load(userID)
	if !ok {
		return Session{}, false
	}
	if r.sessionTTL > 0 && r.now().Sub(s.StartedAt) > r.sessionTTL {
		r.sessions.Delete(userID)
		return Session{}, false
	}
	return s, true
}

// SubmitName records the name and moves the session to the attendance step.
func (r *Registry) SubmitName(userID int64, name string) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrEmptyName
	}
	s, ok := r.Session(userID)
	if !ok {
		return Session{}, ErrNoSession
	}
	if s.Stage != StageAwaitingName {
		return s, ErrWrongStage
	}
	s.Name = name
	s.Stage = StageAwaitingAttendance
	r.sessions.Store(userID, s)
	return s, nil
}

// Complete finishes the session with the attendance answer and stores the registration.
func (r *Registry) Complete(ctx context.Context, user *api.User, answer Attendance) (Session, error) {
	if user == nil {
		return Session{}, ErrNoSession
	}
	s, ok := r.Session(user.ID)
	if !ok {
		return Session{}, ErrNoSession
	}
	if s.Stage != StageAwaitingAttendance {
		return s, ErrWrongStage
	}
	if err := r.Register(ctx, s.GroupID, user, s.Name, answer); err != nil {
		return s, err
	}
	r.sessions.Delete(user.ID)
	return s, nil
}

func (r *Registry) Cancel(userID int64) {
	r.sessions.Delete(userID)
}

func DeepLink(botUsername string, groupID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, StartPayloadPrefix, groupID)
}

// ParseStartPayload extracts the group id from a /start register_{id} payload.
func ParseStartPayload(payload string) (int64, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(payload), StartPayloadPrefix)
	if !ok {
		return 0, false
	}
	groupID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return groupID, true
}
