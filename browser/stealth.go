package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// targetPatch 新目标被接管后要执行的操作
type targetPatch interface {
	AddScript(js string) error
	Configure(s PageSettings)
	Resume() error
}

// patchTarget 页面先注入反检测脚本并应用设置，最后才放行，保证站点脚本运行时补丁已经生效。
// 非页面目标（worker 等）只放行。
func patchTarget(t targetPatch, isPage, waiting bool, s PageSettings) {
	if isPage {
		if err := t.AddScript(stealth.JS); err != nil {
			logrus.WithError(err).Warn("failed to inject stealth script into new target")
		}
		t.Configure(s)
	}
	if waiting {
		if err := t.Resume(); err != nil {
			logrus.WithError(err).Warn("failed to resume new target")
		}
	}
}

type sessionTarget struct{ page *rod.Page }

func (t sessionTarget) AddScript(js string) error {
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: js}.Call(t.page)
	return err
}

func (t sessionTarget) Configure(s PageSettings) { ConfigurePage(t.page, s) }

func (t sessionTarget) Resume() error {
	return proto.RuntimeRunIfWaitingForDebugger{}.Call(t.page)
}

// PatchNewTargets 让浏览器自动接管之后创建的每个目标，新目标启动时先暂停，
// 打完补丁再继续。站点通过 window.open 打开的标签页也会被覆盖。
// 返回的 stop 结束监听并等待正在处理的目标完成。
func PatchNewTargets(b *rod.Browser, s PageSettings) (stop func(), err error) {
	ctx, cancel := context.WithCancel(context.Background())

	wait := b.Context(ctx).EachEvent(func(e *proto.TargetAttachedToTarget) {
		isPage := e.TargetInfo != nil && e.TargetInfo.Type == proto.TargetTargetInfoTypePage
		patchTarget(sessionTarget{page: b.PageFromSession(e.SessionID)}, isPage, e.WaitingForDebugger, s)
	})
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	err = proto.TargetSetAutoAttach{
		AutoAttach:             true,
		WaitForDebuggerOnStart: true,
		Flatten:                true,
	}.Call(b)
	if err != nil {
		cancel()
		<-done
		return nil, errors.Wrap(err, "enable target auto attach")
	}

	return func() {
		cancel()
		<-done
	}, nil
}
