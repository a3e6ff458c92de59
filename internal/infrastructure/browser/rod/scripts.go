package rod

// domLib is prepended to every in-page function that needs roles, names or
// visibility. It must stay free of backticks.
const domLib = `
const __norm = (s) => (s || '')
	.replace(/[‘’‛]/g, "'")
	.replace(/[“”„]/g, '"')
	.replace(/[‑–—]/g, '-')
	.replace(/\s+/g, ' ')
	.trim()
	.toLowerCase();

const __visible = (el) => {
	const r = el.getBoundingClientRect();
	if (r.width <= 0 || r.height <= 0) return false;
	const st = getComputedStyle(el);
	if (st.visibility === 'hidden' || st.display === 'none' || st.opacity === '0') return false;
	return !el.closest('[hidden],[aria-hidden="true"]');
};

const __enabled = (el) => !el.disabled &&
	el.getAttribute('aria-disabled') !== 'true' &&
	!el.closest('fieldset[disabled]');

const __role = (el) => {
	const explicit = (el.getAttribute('role') || '').trim().split(/\s+/)[0];
	if (explicit) return explicit.toLowerCase();
	const type = (el.getAttribute('type') || '').toLowerCase();
	switch (el.tagName.toLowerCase()) {
	case 'a': case 'area': return el.hasAttribute('href') ? 'link' : '';
	case 'button': return 'button';
	case 'input':
		if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
		if (type === 'checkbox') return 'checkbox';
		if (type === 'radio') return 'radio';
		if (type === 'range') return 'slider';
		if (type === 'number') return 'spinbutton';
		if (type === 'search') return 'searchbox';
		if (type === 'hidden') return '';
		return el.hasAttribute('list') ? 'combobox' : 'textbox';
	case 'textarea': return 'textbox';
	case 'select': return (el.multiple || el.size > 1) ? 'listbox' : 'combobox';
	case 'option': return 'option';
	case 'h1': case 'h2': case 'h3': case 'h4': case 'h5': case 'h6': return 'heading';
	case 'dialog': return el.open ? 'dialog' : '';
	case 'img': return el.getAttribute('alt') === '' ? '' : 'img';
	case 'nav': return 'navigation';
	case 'main': return 'main';
	case 'form': return 'form';
	case 'ul': case 'ol': return 'list';
	case 'li': return 'listitem';
	case 'table': return 'table';
	case 'progress': return 'progressbar';
	case 'output': return 'status';
	case 'header': return 'banner';
	case 'footer': return 'contentinfo';
	case 'aside': return 'complementary';
	}
	return '';
};

const __labels = (el) => {
	const out = [];
	const lb = el.getAttribute('aria-labelledby');
	if (lb) {
		out.push(lb.split(/\s+/).map((id) => {
			const n = document.getElementById(id);
			return n ? n.textContent : '';
		}).join(' '));
	}
	const al = el.getAttribute('aria-label');
	if (al) out.push(al);
	if (el.labels) for (const l of el.labels) out.push(l.textContent);
	const ph = el.getAttribute('placeholder');
	if (ph) out.push(ph);
	return out.map((s) => s.trim()).filter(Boolean);
};

const __name = (el) => {
	const labels = __labels(el);
	if (labels.length) return labels[0];
	const tag = el.tagName.toLowerCase();
	if (tag === 'input' && ['button', 'submit', 'reset'].includes(el.type)) return el.value || '';
	if (tag === 'img' || (tag === 'input' && el.type === 'image')) return el.getAttribute('alt') || '';
	if (tag === 'input' || tag === 'textarea' || tag === 'select') return el.getAttribute('title') || '';
	const text = (el.innerText || el.textContent || '').replace(/\s+/g, ' ').trim();
	return text ? text.slice(0, 120) : (el.getAttribute('title') || '');
};

const __value = (el) => {
	const tag = el.tagName.toLowerCase();
	if (tag === 'input' && ['checkbox', 'radio', 'button', 'submit', 'reset', 'image'].includes(el.type)) return '';
	if (tag === 'input' || tag === 'textarea') return el.value || '';
	if (tag === 'select') return el.selectedOptions && el.selectedOptions.length ? el.selectedOptions[0].textContent.trim() : '';
	return el.getAttribute('aria-valuenow') || '';
};

const __rect = (el) => {
	const r = el.getBoundingClientRect();
	return { x: r.x, y: r.y, width: r.width, height: r.height };
};
`

// findElementsJS returns the elements one strategy query matches, visible or
// not. Names and labels arrive already normalized.
const findElementsJS = `(strategy, role, name, value) => {` + domLib + `
	const all = Array.from(document.querySelectorAll('*'));
	switch (strategy) {
	case 'role':
		return all.filter((el) => __role(el) === role && (!name || __norm(__name(el)) === name));
	case 'label':
		return all.filter((el) => __labels(el).some((l) => __norm(l) === value));
	case 'test_id':
		return Array.from(document.querySelectorAll(
			['data-testid', 'data-test-id', 'data-test']
				.map((a) => '[' + a + '="' + CSS.escape(value) + '"]')
				.join(',')));
	case 'css':
		return Array.from(document.querySelectorAll(value));
	}
	return [];
}`

// candidateInfoJS runs with this bound to one matched element.
const candidateInfoJS = `function () {` + domLib + `
	return JSON.stringify({ visible: __visible(this), enabled: __enabled(this), rect: __rect(this) });
}`

const validSelectorJS = `(s) => {
	try {
		document.createDocumentFragment().querySelector(s);
		return true;
	} catch (e) {
		return false;
	}
}`

// submitJS submits through the element's form. It reports "click" when the
// element is itself a submitter and "enter" when there is no form at all.
const submitJS = `function () {
	const tag = this.tagName.toLowerCase();
	const type = (this.getAttribute('type') || '').toLowerCase();
	if ((tag === 'button' && type !== 'button' && type !== 'reset') || (tag === 'input' && (type === 'submit' || type === 'image'))) {
		return 'click';
	}
	const form = this.form || this.closest('form');
	if (!form) return 'enter';
	if (form.requestSubmit) form.requestSubmit(); else form.submit();
	return 'submitted';
}`

const scrollJS = `(direction) => {
	switch (direction) {
	case 'down': window.scrollBy(0, window.innerHeight * 0.8); return true;
	case 'up': window.scrollBy(0, -window.innerHeight * 0.8); return true;
	case 'top': window.scrollTo(0, 0); return true;
	case 'bottom': window.scrollTo(0, document.documentElement.scrollHeight); return true;
	}
	return false;
}`

// roleTreeJS walks visible elements in document order and keeps those with
// a role, up to max nodes.
const roleTreeJS = `(max) => {` + domLib + `
	const out = [];
	const root = document.body || document.documentElement;
	if (!root) return JSON.stringify(out);
	const walker = document.createTreeWalker(root, NodeFilter.SHOW_ELEMENT);
	for (let el = walker.currentNode; el && out.length < max; el = walker.nextNode()) {
		const role = __role(el);
		if (!role || role === 'generic' || role === 'presentation' || role === 'none') continue;
		if (!__visible(el)) continue;
		out.push({
			role: role,
			name: __name(el),
			value: __value(el),
			rect: __rect(el),
			flags: {
				modal: el.getAttribute('aria-modal') === 'true',
				busy: el.getAttribute('aria-busy') === 'true',
				disabled: !__enabled(el),
				checked: el.checked === true || el.getAttribute('aria-checked') === 'true',
				expanded: el.getAttribute('aria-expanded') === 'true' || (el.tagName === 'DETAILS' && el.open),
				selected: el.selected === true || el.getAttribute('aria-selected') === 'true',
				invalid: el.getAttribute('aria-invalid') === 'true',
			},
		});
	}
	return JSON.stringify(out);
}`

const domSignalsJS = `() => {` + domLib + `
	const forms = {};
	Array.from(document.forms).forEach((f, i) => {
		const key = f.id || f.getAttribute('name') || f.getAttribute('action') || ('form' + i);
		forms[key] = f.querySelector(':invalid') === null;
	});
	const toast = Array.from(document.querySelectorAll('[class*="toast" i], [class*="snackbar" i], [class*="notification" i], [class*="flash" i]'))
		.some(__visible);
	const busy = Array.from(document.querySelectorAll('[aria-busy="true"], [class*="spinner" i], [class*="loading" i]'))
		.some(__visible);
	return JSON.stringify({ forms: forms, toast_hint: toast, busy: busy });
}`

// dialogRectJS locates the first visible dialog for the focus crop.
const dialogRectJS = `() => {` + domLib + `
	const el = Array.from(document.querySelectorAll('[role="dialog"], [role="alertdialog"], dialog[open], [aria-modal="true"]'))
		.find(__visible);
	return JSON.stringify({ found: !!el, rect: el ? __rect(el) : null, width: window.innerWidth });
}`

// redactionJS reports the boxes of every visible element matching any of the
// selectors, plus the viewport width so boxes can be scaled to image pixels.
const redactionJS = `(selectors) => {` + domLib + `
	const boxes = [];
	for (const s of selectors) {
		let els = [];
		try {
			els = Array.from(document.querySelectorAll(s));
		} catch (e) {
			continue;
		}
		for (const el of els) if (__visible(el)) boxes.push(__rect(el));
	}
	return JSON.stringify({ boxes: boxes, width: window.innerWidth });
}`
