package connect

import (
	"net/http"

	"connectrpc.com/connect"

	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/playback"
)

// ControlServiceName is the fully-qualified name of the control service.
const ControlServiceName = "segue.control.v1.ControlService"

// Procedure paths of the control service.
const (
	ProcedurePlay                = "/" + ControlServiceName + "/Play"
	ProcedurePlayPlaylist        = "/" + ControlServiceName + "/PlayPlaylist"
	ProcedureTogglePlayPause     = "/" + ControlServiceName + "/TogglePlayPause"
	ProcedureNext                = "/" + ControlServiceName + "/Next"
	ProcedurePrevious            = "/" + ControlServiceName + "/Previous"
	ProcedureSeek                = "/" + ControlServiceName + "/Seek"
	ProcedureInsertNext          = "/" + ControlServiceName + "/InsertNext"
	ProcedureAppend              = "/" + ControlServiceName + "/Append"
	ProcedureRemove              = "/" + ControlServiceName + "/Remove"
	ProcedureMove                = "/" + ControlServiceName + "/Move"
	ProcedureJumpTo              = "/" + ControlServiceName + "/JumpTo"
	ProcedureToggleShuffle       = "/" + ControlServiceName + "/ToggleShuffle"
	ProcedureCycleRepeat         = "/" + ControlServiceName + "/CycleRepeat"
	ProcedureSetRepeat           = "/" + ControlServiceName + "/SetRepeat"
	ProcedureClear               = "/" + ControlServiceName + "/Clear"
	ProcedureGetStatus           = "/" + ControlServiceName + "/GetStatus"
	ProcedureGetQueue            = "/" + ControlServiceName + "/GetQueue"
	ProcedureGetStats            = "/" + ControlServiceName + "/GetStats"
	ProcedureSubscribeNowPlaying = "/" + ControlServiceName + "/SubscribeNowPlaying"
)

// NewControlServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewControlServiceHandler(svc *ControlService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ProcedurePlay, connect.NewUnaryHandler(ProcedurePlay, svc.Play, opts...))
	mux.Handle(ProcedurePlayPlaylist, connect.NewUnaryHandler(ProcedurePlayPlaylist, svc.PlayPlaylist, opts...))
	mux.Handle(ProcedureTogglePlayPause, connect.NewUnaryHandler(ProcedureTogglePlayPause, svc.TogglePlayPause, opts...))
	mux.Handle(ProcedureNext, connect.NewUnaryHandler(ProcedureNext, svc.Next, opts...))
	mux.Handle(ProcedurePrevious, connect.NewUnaryHandler(ProcedurePrevious, svc.Previous, opts...))
	mux.Handle(ProcedureSeek, connect.NewUnaryHandler(ProcedureSeek, svc.Seek, opts...))
	mux.Handle(ProcedureInsertNext, connect.NewUnaryHandler(ProcedureInsertNext, svc.InsertNext, opts...))
	mux.Handle(ProcedureAppend, connect.NewUnaryHandler(ProcedureAppend, svc.Append, opts...))
	mux.Handle(ProcedureRemove, connect.NewUnaryHandler(ProcedureRemove, svc.Remove, opts...))
	mux.Handle(ProcedureMove, connect.NewUnaryHandler(ProcedureMove, svc.Move, opts...))
	mux.Handle(ProcedureJumpTo, connect.NewUnaryHandler(ProcedureJumpTo, svc.JumpTo, opts...))
	mux.Handle(ProcedureToggleShuffle, connect.NewUnaryHandler(ProcedureToggleShuffle, svc.ToggleShuffle, opts...))
	mux.Handle(ProcedureCycleRepeat, connect.NewUnaryHandler(ProcedureCycleRepeat, svc.CycleRepeat, opts...))
	mux.Handle(ProcedureSetRepeat, connect.NewUnaryHandler(ProcedureSetRepeat, svc.SetRepeat, opts...))
	mux.Handle(ProcedureClear, connect.NewUnaryHandler(ProcedureClear, svc.Clear, opts...))
	mux.Handle(ProcedureGetStatus, connect.NewUnaryHandler(ProcedureGetStatus, svc.GetStatus, opts...))
	mux.Handle(ProcedureGetQueue, connect.NewUnaryHandler(ProcedureGetQueue, svc.GetQueue, opts...))
	mux.Handle(ProcedureGetStats, connect.NewUnaryHandler[Empty, playback.Stats](ProcedureGetStats, svc.GetStats, opts...))
	mux.Handle(ProcedureSubscribeNowPlaying, connect.NewServerStreamHandler[Empty, nowplaying.Notification](
		ProcedureSubscribeNowPlaying, svc.SubscribeNowPlaying, opts...))

	return "/" + ControlServiceName + "/", mux
}
