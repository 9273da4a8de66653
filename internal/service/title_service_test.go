package service

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/ai"
)

func TestTitleService(t *testing.T) {
	Convey("未配置模型时回退到默认标题", t, func() {
		svc := NewTitleService(ai.NewTitleGenerator(nil, 0, 10, "新对话"), nil, time.Second)
		title, source := svc.Generate(context.Background(), "!!!")
		So(title, ShouldEqual, "新对话")
		So(source, ShouldEqual, ai.TitleSourceDefault)
	})
}
