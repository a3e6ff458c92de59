package rod

// Page fixtures served by httptest in the adapter tests.
const (
	BasicHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
	<h1>Hello World</h1>
</body>
</html>`

	FormHTML = `<!DOCTYPE html>
<html>
<body>
	<form id="login" onsubmit="event.preventDefault(); document.getElementById('status').textContent = 'sent:' + document.getElementById('username').value;">
		<label for="username">User name</label>
		<input id="username" type="text" name="username" required />
		<input id="password" type="password" name="password" placeholder="Password" />
		<button id="submit" type="submit" data-testid="login-submit">Sign in</button>
	</form>
	<div id="status" role="status"></div>
</body>
</html>`

	InteractiveHTML = `<!DOCTYPE html>
<html>
<body>
	<button id="btn">Click Me</button>
	<button id="disabled" disabled>Click Me</button>
	<div id="result"></div>
	<script>
		document.getElementById('btn').addEventListener('click', function() {
			document.getElementById('result').textContent = 'Clicked!';
		});
	</script>
</body>
</html>`

	RichUIHTML = `<!DOCTYPE html>
<html>
<body>
	<nav><a href="/page1" id="link1">Link 1</a></nav>
	<main>
		<h2>Results</h2>
		<button id="btn1" aria-label="First Button">Button 1</button>
		<div role="button" id="divBtn">Div Button</div>
		<input id="search" type="search" aria-label="Search Wikipedia" />
		<input id="hidden" type="text" style="display:none" aria-label="Hidden field" />
		<ul><li>One</li><li>Two</li></ul>
	</main>
</body>
</html>`

	DialogHTML = `<!DOCTYPE html>
<html>
<body style="margin:0">
	<h1>Background</h1>
	<div class="toast">Saved</div>
	<div role="dialog" aria-modal="true" aria-label="Confirm" style="position:absolute;left:100px;top:100px;width:200px;height:100px;background:#fff">
		<p class="secret">4111 1111 1111 1111</p>
		<button>OK</button>
	</div>
</body>
</html>`

	ScrollableHTML = `<!DOCTYPE html>
<html>
<body style="height: 5000px;">
	<h1 id="top">Top of Page</h1>
	<div style="margin-top: 2000px;" id="middle">Middle</div>
	<div style="margin-top: 2000px;" id="bottom">Bottom</div>
</body>
</html>`
)
