package engine

// State - фаза жизненного цикла движка синхронизации. Переходы:
//
//	Idle -> Exporting -> Idle            (обслуживание экспорта)
//	Idle -> AwaitingPeer -> Importing -> Idle|Error   (обмен с peer-ом)
//
// Из Error движок выходит при начале следующей операции.
type State int

const (
	StateIdle State = iota
	StateExporting
	StateAwaitingPeer
	StateImporting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExporting:
		return "exporting"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateImporting:
		return "importing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State возвращает текущую фазу движка.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

// BeginAwaitingPeer помечает, что запрос к peer-у отправлен и движок ждет
// его данные. Вызывается клиентской стороной перед pull-ом.
func (e *Engine) BeginAwaitingPeer() {
	e.setState(StateAwaitingPeer)
}

// Reset возвращает движок в Idle (например, если peer не ответил и
// импорт не начался).
func (e *Engine) Reset() {
	e.setState(StateIdle)
}
