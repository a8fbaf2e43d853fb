// ABOUTME: Static flow table: branches, per-state steps, choices and prompts
// ABOUTME: The engine is generic over this table; Validate checks it is closed

package dialogue

import (
	"errors"
	"fmt"
)

// Choice is one enumerated answer of a step.
type Choice struct {
	Label string
	Icon  string
	// Value is stored into the step's field. Empty means the cleaned label.
	Value string
	// Next overrides the step's Next.
	Next State
	// NoWrite marks navigation-only choices that store nothing.
	NoWrite bool
}

// ButtonText is the label as shown on the keyboard.
func (c Choice) ButtonText() string {
	if c.Icon == "" {
		return c.Label
	}
	return c.Icon + " " + c.Label
}

// StoredValue is what a match writes into the step's field.
func (c Choice) StoredValue() string {
	if c.Value != "" {
		return c.Value
	}
	return CleanLabel(c.Label)
}

// Step describes one capture state. A step without Choices takes free text.
type Step struct {
	State   State
	Branch  BranchID
	Prompt  string
	Field   Field
	Choices []Choice
	Next    State
}

// FreeText reports whether the step accepts arbitrary text.
func (s *Step) FreeText() bool {
	return len(s.Choices) == 0
}

// Branch is one main menu entry and the record it fills.
type Branch struct {
	ID          BranchID
	Label       string
	Icon        string
	Topic       string
	Entry       State
	TopicFields []Field
}

// ButtonText is the label as shown on the main menu.
func (b Branch) ButtonText() string {
	if b.Icon == "" {
		return b.Label
	}
	return b.Icon + " " + b.Label
}

// Flow is the complete intake script.
type Flow struct {
	Greeting string
	Branches []Branch
	Steps    map[State]*Step

	ContactLabel string
	ContactIcon  string
	ContactTopic string

	// PhonePrompt is a markdown template; %s is replaced with the privacy URL.
	PhonePrompt      string
	LeaveNumberLabel string
	LeaveNumberIcon  string
	PhoneInputPrompt string

	TimePrompt  string
	TimeOptions []Choice

	ConfirmText       string
	OperatorLinkLabel string
	BackToMenuLabel   string
}

// States returns every state the flow can be in.
func (f *Flow) States() []State {
	out := []State{StateStart}
	for s := range f.Steps {
		out = append(out, s)
	}
	return append(out, tailStates...)
}

// HasState reports whether s is a member of the flow's state set.
func (f *Flow) HasState(s State) bool {
	if s == StateStart {
		return true
	}
	for _, t := range tailStates {
		if s == t {
			return true
		}
	}
	_, ok := f.Steps[s]
	return ok
}

// BranchByID returns the branch definition for id.
func (f *Flow) BranchByID(id BranchID) (Branch, bool) {
	for _, b := range f.Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

// Validate checks that every transition lands on a known state, every written
// field belongs to its branch record and no two labels collide.
func (f *Flow) Validate() error {
	var errs []error

	if len(f.Branches) == 0 {
		errs = append(errs, errors.New("flow has no branches"))
	}

	seen := map[string]BranchID{}
	contactKey := Normalize(f.ContactLabel)
	if contactKey == "" {
		errs = append(errs, errors.New("contact label is empty"))
	}
	for _, b := range f.Branches {
		key := Normalize(b.Label)
		if key == "" {
			errs = append(errs, fmt.Errorf("branch %s: empty label", b.ID))
		}
		if other, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("branch %s: label collides with %s", b.ID, other))
		}
		if key == contactKey || IsMenuCommand(key) {
			errs = append(errs, fmt.Errorf("branch %s: label collides with a command", b.ID))
		}
		seen[key] = b.ID

		if NewDetails(b.ID) == nil {
			errs = append(errs, fmt.Errorf("branch %s: no details record", b.ID))
			continue
		}
		if step, ok := f.Steps[b.Entry]; !ok {
			errs = append(errs, fmt.Errorf("branch %s: entry state %s has no step", b.ID, b.Entry))
		} else if step.Branch != b.ID {
			errs = append(errs, fmt.Errorf("branch %s: entry state %s belongs to %s", b.ID, b.Entry, step.Branch))
		}
		for _, field := range b.TopicFields {
			if !HasField(NewDetails(b.ID), field) {
				errs = append(errs, fmt.Errorf("branch %s: topic field %s not in record", b.ID, field))
			}
		}
	}

	for state, step := range f.Steps {
		if step.State != state {
			errs = append(errs, fmt.Errorf("step %s: keyed under %s", step.State, state))
		}
		if step.Prompt == "" {
			errs = append(errs, fmt.Errorf("step %s: empty prompt", state))
		}
		rec := NewDetails(step.Branch)
		if rec == nil {
			errs = append(errs, fmt.Errorf("step %s: unknown branch %s", state, step.Branch))
			continue
		}

		writes := step.FreeText()
		labels := map[string]bool{}
		for _, c := range step.Choices {
			key := Normalize(c.Label)
			if labels[key] {
				errs = append(errs, fmt.Errorf("step %s: duplicate choice %q", state, c.Label))
			}
			labels[key] = true
			if _, shadowed := seen[key]; shadowed || key == contactKey || IsMenuCommand(key) {
				errs = append(errs, fmt.Errorf("step %s: choice %q is shadowed by a global command", state, c.Label))
			}
			if !c.NoWrite {
				writes = true
			}
			next := c.Next
			if next == "" {
				next = step.Next
			}
			if !f.HasState(next) || next == StateStart {
				errs = append(errs, fmt.Errorf("step %s: choice %q targets unknown state %q", state, c.Label, next))
			}
		}
		if step.FreeText() && (!f.HasState(step.Next) || step.Next == StateStart) {
			errs = append(errs, fmt.Errorf("step %s: next state %q unknown", state, step.Next))
		}
		if writes && !HasField(rec, step.Field) {
			errs = append(errs, fmt.Errorf("step %s: field %s not in %s record", state, step.Field, step.Branch))
		}
	}

	if len(f.TimeOptions) == 0 {
		errs = append(errs, errors.New("no time options"))
	}

	return errors.Join(errs...)
}

const settlementPrompt = "Укажите населённый пункт (одной строкой).\nНапример: Ставрополь."

// DefaultFlow returns the legal-services intake script.
func DefaultFlow() *Flow {
	steps := []*Step{
		{
			State:  StateReplan1,
			Branch: BranchReplan,
			Prompt: "Перепланировка.\nКакое помещение вас интересует?",
			Field:  FieldReplanType,
			Choices: []Choice{
				{Label: "Жилое", Icon: "🏠", Value: "жилое"},
				{Label: "Нежилое", Icon: "🏢", Value: "нежилое"},
			},
			Next: StateReplan2,
		},
		{
			State:  StateReplan2,
			Branch: BranchReplan,
			Prompt: "Где находится объект?\nЕсли не Ставрополь — выберите «Другой город».",
			Field:  FieldReplanCity,
			Choices: []Choice{
				{Label: "Ставрополь", Icon: "📍", Value: "Ставрополь"},
				{Label: "Другой город", Icon: "🌍", Next: StateReplanCity, NoWrite: true},
			},
			Next: StateLeadPhonePrompt,
		},
		{
			State:  StateReplanCity,
			Branch: BranchReplan,
			Prompt: "Укажите город/район (одной строкой).\nНапример: Ставрополь.",
			Field:  FieldReplanCity,
			Next:   StateLeadPhonePrompt,
		},
		{
			State:  StateKad1,
			Branch: BranchCadastral,
			Prompt: "Кадастровые работы.\nЧто нужно сделать?",
			Field:  FieldKadType,
			Choices: []Choice{
				{Label: "Межевание земли", Icon: "📏", Value: "межевание"},
				{Label: "Техплан на здание/помещение", Icon: "🧾", Value: "техплан"},
			},
			Next: StateLeadPhonePrompt,
		},
		{
			State:  StatePrirez1,
			Branch: BranchAllotment,
			Prompt: "Прирезка земли.\nНазначение участка?",
			Field:  FieldPrirezPurpose,
			Choices: []Choice{
				{Label: "ИЖС", Icon: "🏡"},
				{Label: "Садоводство", Icon: "🌿"},
				{Label: "Коммерция", Icon: "🏬"},
				{Label: "ЛПХ", Icon: "🐄"},
				{Label: "Другое", Icon: "❓"},
			},
			Next: StatePrirez2,
		},
		{
			State:  StatePrirez2,
			Branch: BranchAllotment,
			Prompt: settlementPrompt,
			Field:  FieldPrirezSettlement,
			Next:   StateLeadPhonePrompt,
		},
		{
			State:  StateTax1,
			Branch: BranchTax,
			Prompt: "Снижение платежей по недвижимости/земле.\nУкажите кадастровый номер (если несколько — через запятую)\nили адрес объекта.",
			Field:  FieldTaxInput,
			Next:   StateLeadPhonePrompt,
		},
		{
			State:  StateBuild1,
			Branch: BranchBuild,
			Prompt: "Оформление/реконструкция.\nЧто нужно оформить?",
			Field:  FieldBuildType,
			Choices: []Choice{
				{Label: "Жилой дом — реконструкция", Icon: "🏠"},
				{Label: "Жилой дом — новая постройка", Icon: "🏡"},
				{Label: "Коммерческое — реконструкция", Icon: "🏢"},
				{Label: "Коммерческое — новая постройка", Icon: "🏗️"},
			},
			Next: StateBuild2,
		},
		{
			State:  StateBuild2,
			Branch: BranchBuild,
			Prompt: settlementPrompt,
			Field:  FieldBuildSettlement,
			Next:   StateLeadPhonePrompt,
		},
		{
			State:  StateLand1,
			Branch: BranchLand,
			Prompt: settlementPrompt,
			Field:  FieldLandSettlement,
			Next:   StateLand2,
		},
		{
			State:  StateLand2,
			Branch: BranchLand,
			Prompt: "Кратко опишите ситуацию (1–2 предложения).\nЭто поможет понять суть спора.",
			Field:  FieldLandDesc,
			Next:   StateLeadPhonePrompt,
		},
		{
			State:  StateConst1,
			Branch: BranchConstruction,
			Prompt: "Споры в строительстве.\nВаша роль в проекте?",
			Field:  FieldConstRole,
			Choices: []Choice{
				{Label: "Заказчик", Icon: "👤"},
				{Label: "Подрядчик", Icon: "🛠️"},
				{Label: "Субподрядчик", Icon: "🔧"},
				{Label: "Поставщик", Icon: "📦"},
			},
			Next: StateConst2,
		},
		{
			State:  StateConst2,
			Branch: BranchConstruction,
			Prompt: "Что случилось?\nВыберите наиболее подходящий вариант.",
			Field:  FieldConstIssue,
			Choices: []Choice{
				{Label: "Не оплатили / удерживают оплату", Icon: "💸"},
				{Label: "Срыв сроков / штрафы / неустойка", Icon: "⏱️"},
				{Label: "Дефекты / переделка / качество работ", Icon: "🧱"},
				{Label: "Спор по актам (КС-2/КС-3/УПД)", Icon: "📄"},
				{Label: "Поставка: брак / недопоставка", Icon: "📦"},
				{Label: "Расторжение / односторонний отказ", Icon: "🧾"},
				{Label: "Другое (напишу)", Icon: "✍️", Next: StateConstIssue, NoWrite: true},
			},
			Next: StateLeadPhonePrompt,
		},
		{
			State:  StateConstIssue,
			Branch: BranchConstruction,
			Prompt: "Коротко опишите проблему (одной строкой).\nНапример: «Не оплатили работы по договору».",
			Field:  FieldConstIssue,
			Next:   StateLeadPhonePrompt,
		},
	}

	f := &Flow{
		Greeting: "Здравствуйте! 👋\nВас приветствует юридический центр «Де‑Факто».\nВыберите интересующий вас вопрос ниже 👇",
		Branches: []Branch{
			{ID: BranchTax, Label: "Снижение кадастровой стоимости", Icon: "💰", Topic: "Снижение налога/аренды", Entry: StateTax1, TopicFields: []Field{FieldTaxInput}},
			{ID: BranchReplan, Label: "Перепланировка", Icon: "🏗️", Topic: "Перепланировка", Entry: StateReplan1, TopicFields: []Field{FieldReplanType, FieldReplanCity}},
			{ID: BranchCadastral, Label: "Кадастровые работы", Icon: "📐", Topic: "Кадастровые работы", Entry: StateKad1, TopicFields: []Field{FieldKadType}},
			{ID: BranchAllotment, Label: "Прирезка земли", Icon: "➕", Topic: "Прирезка", Entry: StatePrirez1, TopicFields: []Field{FieldPrirezPurpose, FieldPrirezSettlement}},
			{ID: BranchBuild, Label: "Оформить дом / реконструкцию", Icon: "🏠", Topic: "Оформление/реконструкция", Entry: StateBuild1, TopicFields: []Field{FieldBuildType, FieldBuildSettlement}},
			{ID: BranchLand, Label: "Земельные споры", Icon: "🧭", Topic: "Земельный спор", Entry: StateLand1, TopicFields: []Field{FieldLandSettlement, FieldLandDesc}},
			{ID: BranchConstruction, Label: "Споры в строительстве (для бизнеса)", Icon: "🏢", Topic: "Строительный спор", Entry: StateConst1, TopicFields: []Field{FieldConstRole, FieldConstIssue}},
		},
		Steps: make(map[State]*Step, len(steps)),

		ContactLabel: "Связаться с юристом",
		ContactIcon:  "👨‍⚖️",
		ContactTopic: "Связаться с юристом",

		PhonePrompt: "Чтобы юрист подсказал по вашему случаю, оставьте номер телефона.\n" +
			"Мы на связи Пн–Пт 09:00–18:00.\n" +
			"Номер используется только для связи по вашему обращению.\n" +
			"Отправляя номер, вы соглашаетесь на [политику конфиденциальности](%s).",
		LeaveNumberLabel: "Оставить номер",
		LeaveNumberIcon:  "📞",
		PhoneInputPrompt: "Пожалуйста, введите номер в формате +7…\nНапример: +7 900 123-45-67",

		TimePrompt: "Когда удобнее связаться?\nВыберите подходящий интервал.",
		TimeOptions: []Choice{
			{Label: "Утром (09:00–12:00)", Icon: "🌅"},
			{Label: "Днём (12:00–15:00)", Icon: "🌞"},
			{Label: "Вечером (15:00–18:00)", Icon: "🌆"},
			{Label: "Не важно", Icon: "✅"},
		},

		ConfirmText: "Спасибо! Заявка принята ✅\n" +
			"Мы свяжемся с вами в ближайшее рабочее время (Пн–Пт 09:00–18:00).\n" +
			"Если удобно — можно написать юристу прямо сейчас или вернуться в меню.",
		OperatorLinkLabel: "Написать юристу прямо сейчас",
		BackToMenuLabel:   "⬅️ В меню",
	}
	for _, s := range steps {
		f.Steps[s.State] = s
	}
	return f
}
