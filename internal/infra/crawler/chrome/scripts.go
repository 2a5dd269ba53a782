package chrome

// queryJS 返回匹配 css 且自身文本包含任一 texts 片段的元素
const queryJS = `(css, texts) => {
	const nodes = Array.from(document.querySelectorAll(css || '*'));
	if (!texts || texts.length === 0) return nodes;
	const needles = texts.map(t => t.toLowerCase());
	return nodes.filter(n => {
		let own = '';
		for (const c of n.childNodes) {
			if (c.nodeType === 3) own += c.textContent;
		}
		own = own.toLowerCase();
		return needles.some(t => own.includes(t));
	});
}`

// stealthJS 在每个文档加载前隐藏自动化痕迹
const stealthJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`
