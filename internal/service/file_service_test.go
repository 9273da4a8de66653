package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"webchat/internal/pkg/storage/local"
	"webchat/internal/upstream"
)

type fakeFileRelay struct {
	resp *upstream.PassThroughResponse
	err  error
}

func (f *fakeFileRelay) UploadFile(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error) {
	return f.resp, f.err
}

func (f *fakeFileRelay) AudioToText(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error) {
	return f.resp, f.err
}

func TestFileService(t *testing.T) {
	Convey("文件透传与归档", t, func() {
		ctx := context.Background()
		archive, err := local.NewLocalStorage(t.TempDir(), "http://localhost/files")
		So(err, ShouldBeNil)

		file := upstream.FilePart{FileName: "photo.PNG", ContentType: "image/png", Data: []byte("png")}

		Convey("上传成功后归档", func() {
			relay := &fakeFileRelay{resp: &upstream.PassThroughResponse{
				StatusCode: http.StatusCreated,
				Body:       []byte(`{"id":"file-1","extension":"png"}`),
			}}
			svc := NewFileService(relay, archive)

			resp, err := svc.Upload(ctx, file, "u1")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			rc, err := archive.Download(ctx, "uploads/u1/file-1.png")
			So(err, ShouldBeNil)
			data, _ := io.ReadAll(rc)
			rc.Close()
			So(string(data), ShouldEqual, "png")
		})

		Convey("上游拒绝时不归档，状态原样返回", func() {
			relay := &fakeFileRelay{resp: &upstream.PassThroughResponse{
				StatusCode: http.StatusRequestEntityTooLarge,
				Body:       []byte(`{"code":"file_too_large"}`),
			}}
			svc := NewFileService(relay, archive)

			resp, err := svc.Upload(ctx, file, "u1")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusRequestEntityTooLarge)
			ok, _ := archive.Exists(ctx, "uploads/u1/file-1.png")
			So(ok, ShouldBeFalse)
		})

		Convey("超时错误向上返回", func() {
			svc := NewFileService(&fakeFileRelay{err: upstream.ErrTimeout}, nil)
			_, err := svc.AudioToText(ctx, file, "u1")
			So(errors.Is(err, upstream.ErrTimeout), ShouldBeTrue)
		})
	})
}

func TestArchiveKey(t *testing.T) {
	Convey("归档 key", t, func() {
		So(ArchiveKey("u1", "f1", "png", "a.jpg"), ShouldEqual, "uploads/u1/f1.png")
		So(ArchiveKey("u1", "f1", "", "a.JPG"), ShouldEqual, "uploads/u1/f1.jpg")
		So(ArchiveKey("u1", "f1", "", "noext"), ShouldEqual, "uploads/u1/f1")
		So(ArchiveKey("../x", "f1", "txt", ""), ShouldEqual, "uploads/__x/f1.txt")
		So(ArchiveKey("", "f1", "txt", ""), ShouldEqual, "uploads/anonymous/f1.txt")
	})
}
