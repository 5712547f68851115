package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// uploadsInitiated 按上传方式（single/multipart）统计
	uploadsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrive_uploads_initiated_total",
			Help: "Total number of authorized uploads by mode",
		},
		[]string{"mode"},
	)

	chunksAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrive_chunks_acknowledged_total",
		Help: "Total number of chunk acknowledgments, including repeats",
	})

	// uploadsFinished 按结果（uploaded/cancelled/failed）统计
	uploadsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedrive_uploads_finished_total",
			Help: "Total number of uploads that left the in-flight states",
		},
		[]string{"outcome"},
	)

	staleLedgersCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrive_stale_ledgers_collected_total",
		Help: "Total number of chunk ledgers removed by stale upload collection",
	})

	// orphanSessions 统计本地未能落库、且 abort 也失败的存储端会话
	orphanSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filedrive_orphan_upload_sessions_total",
		Help: "Store-side multipart sessions left without a local record",
	})
)
