// Package tui is the terminal console. It acts as a single user and sends
// every change through the lifecycle service.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
	"github.com/nancliu/pm-agent/internal/lifecycle"
	"github.com/nancliu/pm-agent/internal/model"
	"github.com/nancliu/pm-agent/internal/permission"
)

const (
	viewHeader  = "header"
	viewFooter  = "footer"
	viewTasks   = "tasks"
	viewDeleted = "deleted"
	viewDetail  = "detail"
	viewHistory = "history"
	viewForm    = "form"
)

type UI struct {
	tasks *lifecycle.Service
	actor model.Principal
	now   func() time.Time

	active  []model.Task
	deleted []model.Task
	history []model.HistoryEntry

	selectedActive  int
	selectedDeleted int
	selectedHistory int
	focus           string

	form       *formState
	formEditor *formEditor
	status     string
}

type formState struct {
	fields []formField
	index  int
}

type formEditor struct {
	ui *UI
}

func newUI(tasks *lifecycle.Service, actor model.Principal) *UI {
	ui := &UI{
		tasks: tasks,
		actor: actor,
		now:   time.Now,
		focus: viewTasks,
	}
	ui.formEditor = &formEditor{ui: ui}
	return ui
}

// Run blocks until the user quits.
func Run(tasks *lifecycle.Service, actor model.Principal) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(tasks, actor)

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.loadTasks(); err != nil {
		return err
	}

	if err := gui.MainLoop(); err != nil && !goerrors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

type binding struct {
	view    string
	key     any
	handler func(*gocui.Gui, *gocui.View) error
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	bindings := []binding{
		{"", gocui.KeyCtrlC, u.quit},
		{"", 'q', u.quit},
		{"", 'r', u.reload},
		{"", 'h', u.refreshHistory},
		{"", 'a', u.addTask},
		{"", 'n', u.advanceStatus},
		{"", 'p', u.retreatStatus},
		{"", 'd', u.deleteTask},
		{"", 'u', u.restoreTask},
		{"", gocui.KeyTab, u.switchFocus},
		{"", '1', u.focusTasks},
		{"", '2', u.focusDeleted},
		{"", '3', u.focusDetail},
		{"", '4', u.focusHistory},
		{viewForm, gocui.KeyEnter, u.submitForm},
		{viewForm, gocui.KeyTab, u.nextFormField},
		{viewForm, gocui.KeyArrowDown, u.nextFormField},
		{viewForm, gocui.KeyArrowUp, u.prevFormField},
		{viewForm, gocui.KeyEsc, u.cancelForm},
	}
	for _, name := range []string{viewTasks, viewDeleted, viewHistory} {
		bindings = append(bindings,
			binding{name, 'j', u.moveDown},
			binding{name, gocui.KeyArrowDown, u.moveDown},
			binding{name, 'k', u.moveUp},
			binding{name, gocui.KeyArrowUp, u.moveUp},
		)
	}

	for _, b := range bindings {
		if err := gui.SetKeybinding(b.view, b.key, gocui.ModNone, b.handler); err != nil {
			return err
		}
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}
	now := u.now()

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	u.renderHeader(headerView)

	footerY1 := max(maxY-2, 1)
	footerY0 := max(footerY1-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}
	l := computeLayout(maxX, bodyBottom-bodyTop+1)

	leftX1 := l.leftWidth - 1
	rightX0 := min(leftX1+1, maxX-1)
	tasksY1 := bodyTop + l.tasksHeight - 1
	detailY1 := bodyTop + l.detailHeight - 1

	tasksView, err := gui.SetView(viewTasks, 0, bodyTop, leftX1, tasksY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		tasksView.Title = "1 Tasks"
	}
	applyViewStyle(tasksView, u.focus == viewTasks, true)
	renderList(tasksView, mapTasks(u.active, func(t model.Task) string {
		return formatTaskSummary(t, now)
	}), u.selectedActive, u.focus == viewTasks)

	deletedView, err := gui.SetView(viewDeleted, 0, tasksY1+1, leftX1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		deletedView.Title = "2 Deleted"
		deletedView.TitleColor = gocui.ColorRed
	}
	applyViewStyle(deletedView, u.focus == viewDeleted, true)
	if u.canViewDeleted() {
		renderList(deletedView, mapTasks(u.deleted, func(t model.Task) string {
			return formatDeletedSummary(t, now)
		}), u.selectedDeleted, u.focus == viewDeleted)
	} else {
		deletedView.Clear()
		fmt.Fprint(deletedView, "managers and admins only")
	}

	detailView, err := gui.SetView(viewDetail, rightX0, bodyTop, maxX-1, detailY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		detailView.Title = "3 Detail"
		detailView.Wrap = true
	}
	applyViewStyle(detailView, u.focus == viewDetail, false)
	u.renderDetail(detailView)

	historyView, err := gui.SetView(viewHistory, rightX0, detailY1+1, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		historyView.Title = "4 History"
	}
	applyViewStyle(historyView, u.focus == viewHistory, true)
	lines := make([]string, 0, len(u.history))
	for _, entry := range u.history {
		lines = append(lines, formatHistoryEntry(entry, now))
	}
	renderList(historyView, lines, u.selectedHistory, u.focus == viewHistory)

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	gui.Cursor = u.form != nil
	return nil
}

type layout struct {
	leftWidth    int
	tasksHeight  int
	detailHeight int
}

func computeLayout(width, height int) layout {
	safeWidth := max(width-2, 20)
	safeHeight := max(height, 8)

	leftWidth := safeWidth / 2
	if leftWidth < 30 {
		leftWidth = min(30, safeWidth-10)
	}

	tasksHeight := max(int(float64(safeHeight)*0.65), 4)
	if safeHeight-tasksHeight < 3 {
		tasksHeight = safeHeight - 3
	}
	detailHeight := max(int(float64(safeHeight)*0.5), 4)
	if safeHeight-detailHeight < 3 {
		detailHeight = safeHeight - 3
	}

	return layout{leftWidth: leftWidth, tasksHeight: tasksHeight, detailHeight: detailHeight}
}

func mapTasks(tasks []model.Task, format func(model.Task) string) []string {
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		lines = append(lines, format(task))
	}
	return lines
}

func renderList(view *gocui.View, lines []string, selected int, focused bool) {
	view.Clear()
	for i, line := range lines {
		prefix := " "
		if i == selected {
			if focused {
				prefix = ">"
			} else {
				prefix = "*"
			}
		}
		fmt.Fprintf(view, "%s %s\n", prefix, line)
	}
	if focused && len(lines) > 0 {
		view.SetCursor(0, min(selected, len(lines)-1))
	}
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	fmt.Fprintf(view, "User: %s (%s) | Active: %d | Deleted: %d", u.actor.ID, u.actor.Role, len(u.active), len(u.deleted))
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	fmt.Fprintln(view, "a add | n next status | p previous status | d delete | u restore | h history | r reload")
	fmt.Fprintln(view, "tab cycle | 1-4 panes | j/k move | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) renderDetail(view *gocui.View) {
	view.Clear()
	selected := u.selectedTask()
	if selected == nil {
		fmt.Fprint(view, "No task selected")
		return
	}
	fmt.Fprint(view, strings.Join(detailLines(*selected, u.now()), "\n"))
}

func (u *UI) canViewDeleted() bool {
	return permission.CanViewDeleted(u.actor).Err() == nil
}

func (u *UI) loadTasks() error {
	ctx := context.Background()
	active, err := u.tasks.List(ctx, model.Filter{Limit: model.MaxLimit}, u.actor)
	if err != nil {
		return err
	}
	u.active = active

	u.deleted = nil
	if u.canViewDeleted() {
		deleted, err := u.tasks.ListDeleted(ctx, u.actor, model.MaxLimit, 0)
		if err != nil {
			return err
		}
		u.deleted = deleted
	}

	u.selectedActive = clampIndex(u.selectedActive, len(u.active))
	u.selectedDeleted = clampIndex(u.selectedDeleted, len(u.deleted))
	return u.loadHistory()
}

func (u *UI) loadHistory() error {
	u.history = nil
	if u.focus == viewDeleted || u.selectedActive >= len(u.active) {
		return nil
	}
	history, err := u.tasks.GetHistory(context.Background(), u.active[u.selectedActive].ID, u.actor, model.MaxLimit, 0)
	if err != nil {
		return err
	}
	u.history = history
	u.selectedHistory = clampIndex(u.selectedHistory, len(u.history))
	return nil
}

func clampIndex(index, length int) int {
	if index >= length {
		index = length - 1
	}
	return max(index, 0)
}

func (u *UI) selectedTask() *model.Task {
	if u.focus == viewDeleted {
		if u.selectedDeleted < len(u.deleted) {
			return &u.deleted[u.selectedDeleted]
		}
		return nil
	}
	if u.selectedActive < len(u.active) {
		return &u.active[u.selectedActive]
	}
	return nil
}

// selectedActiveTask returns the task under the cursor when the tasks pane has
// focus.
func (u *UI) selectedActiveTask() *model.Task {
	if u.focus != viewTasks {
		return nil
	}
	return u.selectedTask()
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	switch u.focus {
	case viewTasks:
		return u.setFocus(gui, viewDeleted)
	case viewDeleted:
		return u.setFocus(gui, viewDetail)
	case viewDetail:
		return u.setFocus(gui, viewHistory)
	default:
		return u.setFocus(gui, viewTasks)
	}
}

func (u *UI) focusTasks(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewTasks)
}

func (u *UI) focusDeleted(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDeleted)
}

func (u *UI) focusDetail(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewDetail)
}

func (u *UI) focusHistory(gui *gocui.Gui, _ *gocui.View) error {
	return u.setFocus(gui, viewHistory)
}

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.form != nil {
		return nil
	}
	u.focus = name
	if gui != nil {
		_, _ = gui.SetCurrentView(name)
	}
	return u.loadHistory()
}

func (u *UI) moveDown(_ *gocui.Gui, _ *gocui.View) error {
	switch u.focus {
	case viewTasks:
		if u.selectedActive < len(u.active)-1 {
			u.selectedActive++
			return u.loadHistory()
		}
	case viewDeleted:
		if u.selectedDeleted < len(u.deleted)-1 {
			u.selectedDeleted++
		}
	case viewHistory:
		if u.selectedHistory < len(u.history)-1 {
			u.selectedHistory++
		}
	}
	return nil
}

func (u *UI) moveUp(_ *gocui.Gui, _ *gocui.View) error {
	switch u.focus {
	case viewTasks:
		if u.selectedActive > 0 {
			u.selectedActive--
			return u.loadHistory()
		}
	case viewDeleted:
		if u.selectedDeleted > 0 {
			u.selectedDeleted--
		}
	case viewHistory:
		if u.selectedHistory > 0 {
			u.selectedHistory--
		}
	}
	return nil
}

func (u *UI) reload(_ *gocui.Gui, _ *gocui.View) error {
	if u.form != nil {
		return nil
	}
	u.status = ""
	return u.loadTasks()
}

func (u *UI) refreshHistory(_ *gocui.Gui, _ *gocui.View) error {
	if u.form != nil {
		return nil
	}
	return u.loadHistory()
}

// report shows err in the footer and reloads on success. Service errors never
// end the main loop.
func (u *UI) report(err error, done string) error {
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = done
	return u.loadTasks()
}

func (u *UI) advanceStatus(_ *gocui.Gui, _ *gocui.View) error {
	return u.stepSelected(1)
}

func (u *UI) retreatStatus(_ *gocui.Gui, _ *gocui.View) error {
	return u.stepSelected(-1)
}

func (u *UI) stepSelected(delta int) error {
	if u.form != nil {
		return nil
	}
	selected := u.selectedActiveTask()
	if selected == nil {
		return nil
	}
	target, ok := stepStatus(selected.Status, delta)
	if !ok {
		u.status = fmt.Sprintf("no status reachable from %s", selected.Status)
		return nil
	}
	_, err := u.tasks.ChangeStatus(context.Background(), selected.ID, string(target), u.actor)
	return u.report(err, fmt.Sprintf("%s -> %s", selected.Title, target))
}

func (u *UI) deleteTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.form != nil {
		return nil
	}
	selected := u.selectedActiveTask()
	if selected == nil {
		return nil
	}
	_, err := u.tasks.Delete(context.Background(), selected.ID, u.actor, nil)
	return u.report(err, "deleted "+selected.Title)
}

func (u *UI) restoreTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.form != nil || u.focus != viewDeleted {
		return nil
	}
	selected := u.selectedTask()
	if selected == nil {
		return nil
	}
	_, err := u.tasks.Restore(context.Background(), selected.ID, u.actor)
	return u.report(err, "restored "+selected.Title)
}

func (u *UI) addTask(_ *gocui.Gui, _ *gocui.View) error {
	if u.form != nil {
		return nil
	}
	u.form = &formState{fields: buildFormFields()}
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(60, maxX/2)
	height := 6
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	view.Title = "New Task"
	view.Wrap = true
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) submitForm(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}
	input, err := parseFormFields(u.form.fields)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	task, err := u.tasks.Create(context.Background(), input, u.actor)
	if err != nil {
		u.status = err.Error()
		return nil
	}

	u.closeForm(gui)
	return u.report(nil, "created "+task.Title)
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.closeForm(gui)
	return nil
}

func (u *UI) closeForm(gui *gocui.Gui) {
	u.form = nil
	if gui != nil {
		_ = gui.DeleteView(viewForm)
		_, _ = gui.SetCurrentView(u.focus)
	}
}

func (u *UI) nextFormField(_ *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(_ *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.Value)
	}
	current := u.form.fields[u.form.index]
	cursorX := len([]rune(current.Label)) + len([]rune(current.Value)) + 4
	view.SetCursor(cursorX, u.form.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	if isPriorityField(field.Label) {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = cyclePriority(field.Value, 1)
		case gocui.KeyArrowLeft:
			field.Value = cyclePriority(field.Value, -1)
		}
		ui.renderForm(view)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}
	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}
