package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"resumecanvas/internal/resume"
)

// 缩放范围与步长。缩放只作用于渲染表面，从不改写块坐标。
const (
	ZoomMin     = 0.5
	ZoomMax     = 2.0
	ZoomStep    = 0.1
	ZoomDefault = 1.0
)

// Phase 是布局的持久化状态。只存在 UNINITIALIZED → PERSISTED 一条转换。
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhasePersisted     Phase = "persisted"
)

// 动作类型。
const (
	ActionLoad    = "load"
	ActionDragEnd = "drag_end"
	ActionSelect  = "select"
	ActionZoomIn  = "zoom_in"
	ActionZoomOut = "zoom_out"
	ActionZoomSet = "zoom_set"
	ActionSave    = "save"
)

var ErrUnknownAction = errors.New("unknown canvas action")

// Action 是一次用户输入事件。字段按 Type 选择性使用。
type Action struct {
	Type string   `json:"type"`
	ID   string   `json:"id,omitempty"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
	Zoom *float64 `json:"zoom,omitempty"`
}

// Editor 是单个编辑会话的画布状态容器。
// 所有修改都经由下面的动作方法，一次处理一个输入事件。
type Editor struct {
	Blocks     []TextBlock `json:"blocks"`
	SelectedID string      `json:"selectedId,omitempty"`
	Zoom       float64     `json:"zoom"`
	Phase      Phase       `json:"phase"`
	Dirty      bool        `json:"dirty"`

	opts []DecodeOption
}

// NewEditor 返回空编辑器。opts 会在 Load 反序列化持久化文档时使用。
func NewEditor(opts ...DecodeOption) *Editor {
	return &Editor{Zoom: ZoomDefault, Phase: PhaseUninitialized, opts: opts}
}

// Effective 返回简历当前生效的布局：持久化 sections 非空时使用持久化布局，否则根据内容生成。
// 持久化布局一旦存在就优先于重新生成，即使内容之后发生了变化。
func Effective(content resume.Content, stored Document, opts ...DecodeOption) Layout {
	if stored.HasSections() {
		return Deserialize(stored, opts...)
	}
	return Generate(content)
}

// Load 按 Effective 的规则初始化块列表。
func (e *Editor) Load(content resume.Content, stored Document) {
	e.Blocks = Effective(content, stored, e.opts...).Blocks
	e.Phase = PhaseUninitialized
	if stored.HasSections() {
		e.Phase = PhasePersisted
	}
	e.SelectedID = ""
	e.Dirty = false
}

// DragEnd 将指定块移动到释放位置。不做碰撞检测、吸附或边界限制。
func (e *Editor) DragEnd(id string, x, y float64) error {
	if !finite(x) || !finite(y) {
		return fmt.Errorf("%w: %q", ErrNonFinitePosition, id)
	}
	i := e.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, id)
	}
	e.Blocks[i].X = x
	e.Blocks[i].Y = y
	e.Dirty = true
	return nil
}

// Select 标记单选块，后点击者生效。选择不影响持久化。
func (e *Editor) Select(id string) error {
	if e.index(id) < 0 {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, id)
	}
	e.SelectedID = id
	return nil
}

func (e *Editor) ZoomIn() {
	e.SetZoom(e.Zoom + ZoomStep)
}

func (e *Editor) ZoomOut() {
	e.SetZoom(e.Zoom - ZoomStep)
}

// SetZoom 设置缩放并限制在 [ZoomMin, ZoomMax]，结果保留两位小数以消除浮点累积误差。
func (e *Editor) SetZoom(z float64) {
	if !finite(z) {
		return
	}
	z = math.Max(ZoomMin, math.Min(ZoomMax, z))
	e.Zoom = math.Round(z*100) / 100
}

// Snapshot 返回当前布局的副本。
func (e *Editor) Snapshot() Layout {
	blocks := make([]TextBlock, len(e.Blocks))
	copy(blocks, e.Blocks)
	for i := range blocks {
		if blocks[i].Width != nil {
			blocks[i].Width = floatPtr(*blocks[i].Width)
		}
	}
	return NewLayout(blocks)
}

// Save 序列化当前块列表，交由外部持久化。
// 保存成功后调用方需调用 MarkPersisted；失败时内存状态保持不变以便重试。
func (e *Editor) Save() Document {
	return Serialize(e.Snapshot())
}

// MarkPersisted 记录一次成功的外部保存。
func (e *Editor) MarkPersisted() {
	e.Phase = PhasePersisted
	e.Dirty = false
}

// Apply 分发一个类型化动作。load 与 save 需要外部协作者，由调用方处理。
func (e *Editor) Apply(a Action) error {
	switch a.Type {
	case ActionDragEnd:
		if a.X == nil || a.Y == nil {
			return fmt.Errorf("%w: drag_end requires x and y", ErrNonFinitePosition)
		}
		return e.DragEnd(a.ID, *a.X, *a.Y)
	case ActionSelect:
		return e.Select(a.ID)
	case ActionZoomIn:
		e.ZoomIn()
	case ActionZoomOut:
		e.ZoomOut()
	case ActionZoomSet:
		if a.Zoom == nil {
			return fmt.Errorf("%w: zoom_set requires zoom", ErrUnknownAction)
		}
		e.SetZoom(*a.Zoom)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	return nil
}

// MarshalState 将会话状态编码为 JSON。
func (e *Editor) MarshalState() ([]byte, error) {
	return json.Marshal(e)
}

// RestoreEditor 从 MarshalState 的输出恢复编辑器。
func RestoreEditor(data []byte, opts ...DecodeOption) (*Editor, error) {
	e := NewEditor(opts...)
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode editor state: %w", err)
	}
	if e.Zoom == 0 {
		e.Zoom = ZoomDefault
	}
	if e.Phase == "" {
		e.Phase = PhaseUninitialized
	}
	return e, nil
}

func (e *Editor) index(id string) int {
	return Layout{Blocks: e.Blocks}.Index(id)
}
