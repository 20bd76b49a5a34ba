package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// CurrentUserKey is the synthetic context key bound to the logged-in user.
const CurrentUserKey = "current_user"

// ErrPathResolution is wrapped by every path lookup failure.
var ErrPathResolution = errors.New("path resolution failed")

// Context is the JSON document paths are resolved against.
type Context struct {
	doc []byte
}

// NewContext builds the evaluation context: the source payload as a JSON
// object with current_user set to the user snapshot. An ExternalIdentity
// contributes its raw provider payload. Sources that do not encode to a JSON
// object are replaced by an empty object.
func NewContext(source any, user *domain.User) (*Context, error) {
	var payload any = source
	if ident, ok := source.(*domain.ExternalIdentity); ok {
		payload = ident.Raw
	}

	doc := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode source: %w", err)
		}
		if gjson.ParseBytes(b).IsObject() {
			doc = b
		}
	}

	if user != nil {
		u, err := json.Marshal(userSnapshot(user))
		if err != nil {
			return nil, fmt.Errorf("encode current user: %w", err)
		}
		doc, err = sjson.SetRawBytes(doc, CurrentUserKey, u)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", CurrentUserKey, err)
		}
	}
	return &Context{doc: doc}, nil
}

// ContextFromJSON wraps an already encoded JSON document.
func ContextFromJSON(doc []byte) *Context {
	return &Context{doc: doc}
}

// JSON returns the encoded context document.
func (c *Context) JSON() []byte { return c.doc }

type userView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func userSnapshot(u *domain.User) userView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SplitPath splits a dotted path and rejects empty segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPathResolution)
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment at %d", ErrPathResolution, path, i)
		}
	}
	return segments, nil
}

// Resolve walks path through the context. Objects are indexed by key, arrays
// by non-negative integer position. Any other step fails.
func (c *Context) Resolve(path string) (Value, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return Value{}, codedPathError(path, err)
	}

	cur := gjson.ParseBytes(c.doc)
	for i, seg := range segments {
		switch {
		case cur.IsObject():
			cur = cur.Get(gjson.Escape(seg))
		case cur.IsArray():
			idx, ok := arrayIndex(seg)
			items := cur.Array()
			if !ok || idx >= len(items) {
				return Value{}, pathError(path, segments[:i+1], "index out of range")
			}
			cur = items[idx]
		default:
			return Value{}, pathError(path, segments[:i+1], "cannot descend into "+cur.Type.String())
		}
		if !cur.Exists() {
			return Value{}, pathError(path, segments[:i+1], "not found")
		}
	}
	return fromResult(cur), nil
}

func arrayIndex(seg string) (int, bool) {
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	return n, err == nil
}

func pathError(path string, at []string, reason string) error {
	return codedPathError(path,
		fmt.Errorf("%w: %q at %q: %s", ErrPathResolution, path, strings.Join(at, "."), reason))
}

func codedPathError(path string, err error) error {
	return apperrors.Wrap(err, apperrors.CodePathResolution,
		"source path could not be resolved", http.StatusUnprocessableEntity,
	).WithParams(map[string]interface{}{"path": path})
}
