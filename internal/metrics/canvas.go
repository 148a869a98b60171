package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	layoutsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resumecanvas",
			Subsystem: "canvas",
			Name:      "layouts_generated_total",
			Help:      "根据简历内容生成初始布局的次数。",
		},
	)

	layoutSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumecanvas",
			Subsystem: "canvas",
			Name:      "layout_saves_total",
			Help:      "布局保存次数，按结果区分。",
		},
		[]string{"result"},
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resumecanvas",
			Subsystem: "canvas",
			Name:      "actions_total",
			Help:      "画布动作处理次数。",
		},
		[]string{"type"},
	)
)

// LayoutGenerated 记录一次布局生成。
func LayoutGenerated() {
	layoutsGeneratedTotal.Inc()
}

// LayoutSaved 记录一次布局保存结果。
func LayoutSaved(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	layoutSavesTotal.WithLabelValues(result).Inc()
}

// CanvasAction 记录一次画布动作。
func CanvasAction(actionType string) {
	actionsTotal.WithLabelValues(actionType).Inc()
}

// Handler 暴露默认注册表中的全部指标。
func Handler() http.Handler {
	return promhttp.Handler()
}
