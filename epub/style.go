package epub

const styleCSS = `
body > div {
  margin: 0 auto;
  padding: 20px;
  box-sizing: border-box;
  background-color: #fff;
  line-height: 1.6;
  text-align: justify;
  color: #333333;
}

h1 {
  text-align: center;
  font-size: 1.5em;
  margin: 2em auto;
  font-weight: bold;
  color: #2c3e50;
}

p {
  text-indent: 2em;
  margin: 0.8em 0;
  font-size: 1.1em;
}

.unavailable {
  text-align: center;
  color: #888888;
}

.illustration {
  text-align: center;
  margin: 1em 0;
  page-break-before: always;
}

img {
  max-width: 100%;
  height: auto;
  display: block;
  margin-left: auto !important;
  margin-right: auto !important;
  margin-top: 1em;
  margin-bottom: 1em;
}
`
