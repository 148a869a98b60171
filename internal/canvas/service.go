// Package canvas 管理交互式画布会话：编辑器状态保存在 Redis 中，
// 保存动作通过 Repository 写回简历的 canvas_layout。
package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"resumecanvas/internal/layout"
	"resumecanvas/internal/metrics"
)

// ErrSaveFailed 表示布局写回失败。会话中的本地状态会被保留，调用方可以再次保存。
var ErrSaveFailed = errors.New("save failed")

// SavedFunc 在布局成功持久化后被调用，例如投递预览渲染任务。
type SavedFunc func(ctx context.Context, userID, resumeID uint)

// View 是返回给前端的会话视图。
type View struct {
	ResumeID   uint            `json:"resumeId"`
	Layout     layout.Document `json:"layout"`
	SelectedID string          `json:"selectedId,omitempty"`
	Zoom       float64         `json:"zoom"`
	Phase      layout.Phase    `json:"phase"`
	Dirty      bool            `json:"dirty"`
}

// Options 配置 Service。
type Options struct {
	SessionTTL time.Duration
	StableIDs  bool
	OnSaved    SavedFunc
	Logger     *slog.Logger
}

type Service struct {
	repo     Repository
	sessions SessionStore
	ttl      time.Duration
	decode   []layout.DecodeOption
	onSaved  SavedFunc
	logger   *slog.Logger
}

func NewService(repo Repository, sessions SessionStore, opts Options) *Service {
	s := &Service{
		repo:     repo,
		sessions: sessions,
		ttl:      opts.SessionTTL,
		onSaved:  opts.OnSaved,
		logger:   opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = 2 * time.Hour
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if opts.StableIDs {
		s.decode = append(s.decode, layout.WithStoredIDs())
	}
	return s
}

// Open 从数据库加载简历并新建会话，已有会话会被覆盖。
func (s *Service) Open(ctx context.Context, userID, resumeID uint) (View, error) {
	editor, err := s.load(ctx, userID, resumeID)
	if err != nil {
		return View{}, err
	}
	if err := s.store(ctx, userID, resumeID, editor); err != nil {
		return View{}, err
	}
	return newView(resumeID, editor), nil
}

// Apply 依次处理动作。会话不存在时先按 Open 的方式创建。
// 任意动作失败都会停止处理；已生效的动作仍写回会话。
func (s *Service) Apply(ctx context.Context, userID, resumeID uint, actions []layout.Action) (View, error) {
	editor, err := s.session(ctx, userID, resumeID)
	if err != nil {
		return View{}, err
	}

	var applyErr error
	for _, action := range actions {
		if applyErr = s.apply(ctx, userID, resumeID, editor, action); applyErr != nil {
			break
		}
		metrics.CanvasAction(action.Type)
	}

	if errors.Is(applyErr, ErrResumeNotFound) {
		_ = s.sessions.Delete(ctx, sessionKey(userID, resumeID))
		return View{}, applyErr
	}
	if err := s.store(ctx, userID, resumeID, editor); err != nil {
		return View{}, err
	}
	return newView(resumeID, editor), applyErr
}

// Close 丢弃会话。缩放与选中状态随之消失。
func (s *Service) Close(ctx context.Context, userID, resumeID uint) error {
	return s.sessions.Delete(ctx, sessionKey(userID, resumeID))
}

// Current 返回会话中的当前布局，没有会话时返回数据库中的有效布局。
func (s *Service) Current(ctx context.Context, userID, resumeID uint) (layout.Layout, error) {
	editor, err := s.session(ctx, userID, resumeID)
	if err != nil {
		return layout.Layout{}, err
	}
	return editor.Snapshot(), nil
}

func (s *Service) apply(ctx context.Context, userID, resumeID uint, editor *layout.Editor, action layout.Action) error {
	switch action.Type {
	case layout.ActionLoad:
		fresh, err := s.load(ctx, userID, resumeID)
		if err != nil {
			return err
		}
		fresh.Zoom = editor.Zoom
		*editor = *fresh
		return nil
	case layout.ActionSave:
		return s.save(ctx, userID, resumeID, editor)
	default:
		return editor.Apply(action)
	}
}

func (s *Service) save(ctx context.Context, userID, resumeID uint, editor *layout.Editor) error {
	if err := editor.Snapshot().Validate(); err != nil {
		metrics.LayoutSaved(false)
		return err
	}
	doc := editor.Save()
	if err := s.repo.SaveLayout(ctx, userID, resumeID, doc); err != nil {
		metrics.LayoutSaved(false)
		if errors.Is(err, ErrResumeNotFound) {
			return err
		}
		s.logger.Error("save canvas layout failed",
			slog.Uint64("resume_id", uint64(resumeID)),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	metrics.LayoutSaved(true)
	editor.MarkPersisted()
	if s.onSaved != nil {
		s.onSaved(ctx, userID, resumeID)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID, resumeID uint) (*layout.Editor, error) {
	content, stored, err := s.repo.LoadResume(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	editor := layout.NewEditor(s.decode...)
	editor.Load(content, stored)
	if editor.Phase == layout.PhaseUninitialized && !content.IsEmpty() {
		metrics.LayoutGenerated()
	}
	return editor, nil
}

func (s *Service) session(ctx context.Context, userID, resumeID uint) (*layout.Editor, error) {
	data, err := s.sessions.Load(ctx, sessionKey(userID, resumeID))
	if errors.Is(err, ErrSessionMissing) {
		return s.load(ctx, userID, resumeID)
	}
	if err != nil {
		return nil, err
	}
	editor, err := layout.RestoreEditor(data, s.decode...)
	if err != nil {
		// 损坏的会话按缺失处理。
		s.logger.Warn("discard corrupted canvas session", slog.Any("error", err))
		return s.load(ctx, userID, resumeID)
	}
	return editor, nil
}

func (s *Service) store(ctx context.Context, userID, resumeID uint, editor *layout.Editor) error {
	state, err := editor.MarshalState()
	if err != nil {
		return err
	}
	return s.sessions.Store(ctx, sessionKey(userID, resumeID), state, s.ttl)
}

func newView(resumeID uint, e *layout.Editor) View {
	return View{
		ResumeID:   resumeID,
		Layout:     e.Save(),
		SelectedID: e.SelectedID,
		Zoom:       e.Zoom,
		Phase:      e.Phase,
		Dirty:      e.Dirty,
	}
}
