package discovery

// zoomJS 缩小页面,让虚拟列表一次挂载更多行
const zoomJS = `(zoom) => { document.body.style.zoom = String(zoom); return true; }`

// markScrollableJS 从链接元素向上查找第一个可滚动的祖先并打上 data-ds-scroll 标记
const markScrollableJS = `(el) => {
	let node = el.parentElement;
	while (node && node !== document.body) {
		const style = window.getComputedStyle(node);
		const scrollable = style.overflowY === 'auto' || style.overflowY === 'scroll';
		const named = typeof node.className === 'string' && (node.className.includes('scroll') || node.className.includes('List'));
		if ((scrollable || named) && node.scrollHeight > node.clientHeight) {
			node.setAttribute('data-ds-scroll', '1');
			return true;
		}
		node = node.parentElement;
	}
	return false;
}`

const wheelJS = `(el, deltaY) => {
	el.dispatchEvent(new WheelEvent('wheel', {deltaY: deltaY, bubbles: true, cancelable: true, view: window}));
	return true;
}`

const scrollTopJS = `(el) => { el.scrollTop = el.scrollHeight; return el.scrollTop; }`

const scrollIntoViewJS = `(el) => { el.scrollIntoView({block: 'center', behavior: 'smooth'}); return true; }`

// labelledLinksJS 找到自身文本包含任一标签的 div,返回其父节点下所有链接的文本
const labelledLinksJS = `(labels) => {
	const out = [];
	for (const div of document.querySelectorAll('div')) {
		let own = '';
		for (const c of div.childNodes) {
			if (c.nodeType === 3) own += c.textContent;
		}
		if (!labels.some(l => own.includes(l)) || !div.parentElement) continue;
		for (const a of div.parentElement.querySelectorAll('a')) {
			out.push(a.textContent);
		}
	}
	return out;
}`
