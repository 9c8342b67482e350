package browser

// snapshotJS reports on every probed selector and phrase in one round trip. It returns
// a JSON string so the result decodes straight into challenge.Snapshot.
const snapshotJS = `(selectors, phrases, banners) => {
	const describe = (el, selector) => {
		const style = window.getComputedStyle(el);
		const r = el.getBoundingClientRect();
		const cls = typeof el.className === 'string' ? el.className : (el.getAttribute('class') || '');
		return {
			selector: selector,
			tag: el.tagName,
			id: el.id || '',
			class: cls,
			display: style.display,
			visibility: style.visibility,
			opacity: style.opacity,
			offsetWidth: el.offsetWidth || 0,
			offsetHeight: el.offsetHeight || 0,
			rect: { x: r.left, y: r.top, width: r.width, height: r.height },
		};
	};

	const elements = {};
	for (const selector of selectors) {
		let el = null;
		try { el = document.querySelector(selector); } catch (e) {}
		if (el) elements[selector] = describe(el, selector);
	}

	const found = {};
	const root = document.body || document.documentElement;
	if (root) {
		const skip = { SCRIPT: true, STYLE: true, NOSCRIPT: true, TEMPLATE: true };
		const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
		let node;
		while ((node = walker.nextNode())) {
			const text = node.nodeValue;
			if (!text || (node.parentElement && skip[node.parentElement.tagName])) continue;
			for (const phrase of phrases) {
				if (!found[phrase] && text.includes(phrase)) found[phrase] = true;
			}
		}
	}

	const bannerTexts = [];
	for (const selector of banners) {
		let list = [];
		try { list = document.querySelectorAll(selector); } catch (e) {}
		list.forEach(el => {
			const text = el.textContent || '';
			if (text.trim()) bannerTexts.push(text);
		});
	}

	return JSON.stringify({ url: location.href, elements, phrases: found, bannerTexts });
}`

// locateJS measures the drag handle and its track for the element matched by selector.
// The matched element is the handle when it carries a handle class or id fragment;
// otherwise the handle is searched inside it, falling back to the element itself. The
// track is the handle's nearest recognised container, else its parent.
const locateJS = `(selector, handleClasses, handleIdParts, handleSelectors, trackSelectors) => {
	let target = null;
	try { target = document.querySelector(selector); } catch (e) {}
	if (!target) return '';

	const id = target.id || '';
	const isHandle = handleClasses.some(c => target.classList.contains(c)) ||
		handleIdParts.some(p => id.includes(p));

	let handle = isHandle ? target : null;
	if (!handle) {
		for (const s of handleSelectors) {
			let h = null;
			try { h = target.querySelector(s); } catch (e) {}
			if (h) { handle = h; break; }
		}
	}
	if (!handle) handle = target;

	let track = null;
	for (const s of trackSelectors) {
		let t = null;
		try { t = handle.closest(s); } catch (e) {}
		if (t) { track = t; break; }
	}
	if (!track) track = handle.parentElement || target;

	const box = el => {
		const r = el.getBoundingClientRect();
		return { x: r.left, y: r.top, width: r.width, height: r.height };
	};
	return JSON.stringify({ handle: box(handle), track: box(track) });
}`

// clickJS dispatches a synthetic click on the element under the given point.
const clickJS = `(x, y) => {
	const el = document.elementFromPoint(x, y);
	if (!el) return false;
	el.dispatchEvent(new MouseEvent('click', {
		bubbles: true,
		cancelable: true,
		view: window,
		clientX: x,
		clientY: y,
		screenX: x,
		screenY: y,
		button: 0,
	}));
	return true;
}`
