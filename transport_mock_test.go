package surge

import (
	"context"
	"net/url"
	"reflect"

	"go.uber.org/mock/gomock"
)

//go:generate mockgen -destination transport_gen_mock_test.go -package surge -write_package_comment=false github.com/surgemsg/surge-go Transport

// MockTransport is a hand-authored stand-in for what `mockgen` would
// generate for the Transport interface (spec.md section 1's external
// transport collaborator), used so manager/facade tests can script
// Open/Send/Recv/Close behavior without a real socket.
type MockTransport struct {
	ctrl     *gomock.Controller
	recorder *MockTransportRecorder
}

type MockTransportRecorder struct{ mock *MockTransport }

func NewMockTransport(ctrl *gomock.Controller) *MockTransport {
	m := &MockTransport{ctrl: ctrl}
	m.recorder = &MockTransportRecorder{mock: m}
	return m
}

func (m *MockTransport) EXPECT() *MockTransportRecorder { return m.recorder }

func (m *MockTransport) Open(ctx context.Context, host string, query url.Values, tlsEnabled bool) error {
	ret := m.ctrl.Call(m, "Open", ctx, host, query, tlsEnabled)
	err, _ := ret[0].(error)
	return err
}

func (r *MockTransportRecorder) Open(ctx, host, query, tlsEnabled interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "Open", reflect.TypeOf((*MockTransport)(nil).Open), ctx, host, query, tlsEnabled)
}

func (m *MockTransport) Send(frame []byte) error {
	ret := m.ctrl.Call(m, "Send", frame)
	err, _ := ret[0].(error)
	return err
}

func (r *MockTransportRecorder) Send(frame interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "Send", reflect.TypeOf((*MockTransport)(nil).Send), frame)
}

func (m *MockTransport) Recv(ctx context.Context) ([]byte, error) {
	ret := m.ctrl.Call(m, "Recv", ctx)
	data, _ := ret[0].([]byte)
	err, _ := ret[1].(error)
	return data, err
}

func (r *MockTransportRecorder) Recv(ctx interface{}) *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "Recv", reflect.TypeOf((*MockTransport)(nil).Recv), ctx)
}

func (m *MockTransport) Close() error {
	ret := m.ctrl.Call(m, "Close")
	err, _ := ret[0].(error)
	return err
}

func (r *MockTransportRecorder) Close() *gomock.Call {
	return r.mock.ctrl.RecordCallWithMethodType(r.mock, "Close", reflect.TypeOf((*MockTransport)(nil).Close))
}
